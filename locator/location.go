package locator

import "fmt"

// LocationKind tells where a model can be obtained from
type LocationKind string

const (
	// LocationUnknown is for a model neither found locally nor listed in the asset document
	LocationUnknown LocationKind = "unknown"
	// LocationLocal is for a model present on local storage
	LocationLocal LocationKind = "local"
	// LocationRemote is for a model that must be downloaded first
	LocationRemote LocationKind = "remote"
)

// Location is the result of resolving a model name
type Location struct {
	Kind LocationKind
	Name string
	// Path is the local file for LocationLocal, or the download destination for LocationRemote
	Path string
	// URL is only set for LocationRemote
	URL string
}

// IsLocal returns true if the model is on local storage
func (location Location) IsLocal() bool {
	return location.Kind == LocationLocal
}

// IsRemote returns true if the model must be downloaded
func (location Location) IsRemote() bool {
	return location.Kind == LocationRemote
}

// IsUnknown returns true if the model cannot be found anywhere
func (location Location) IsUnknown() bool {
	return location.Kind == LocationUnknown || len(location.Kind) == 0
}

// ToString stringifies the object
func (location Location) ToString() string {
	return fmt.Sprintf("<Location %s %s %s %s>", location.Kind, location.Name, location.Path, location.URL)
}
