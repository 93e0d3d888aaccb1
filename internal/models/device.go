package models

// Device identifies the build line whose history is browsed. It is built
// once from configuration and passed by value.
type Device struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	BuildType string `json:"build_type"`
	Branch    string `json:"branch"`
}

// Matches reports whether a build belongs to this device's build line.
func (d Device) Matches(b *Build) bool {
	if d.BuildType != "" && b.Variant() != d.BuildType {
		return false
	}
	if d.Version != "" && b.Version() != d.Version {
		return false
	}
	return true
}
