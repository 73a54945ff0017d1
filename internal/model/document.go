package model

// Container is a folder-like resource in the remote store.
// Names are not unique upstream; ID is stable once the container exists.
type Container struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Document is a spreadsheet-like resource in the remote store.
// Membership in a Container is a mutable edge held by the store, not by this value.
type Document struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
