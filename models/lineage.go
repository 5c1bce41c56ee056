package models

import "encoding/json"

// UserNode is one uploader in a lineage tree.
type UserNode struct {
	UserID   string      `json:"userId"`
	Children []*UserNode `json:"children"`
}

// UploaderTree is the forest of uploaders that reach one Content node.
type UploaderTree struct {
	ContentHash     string      `json:"contentHash"`
	FirstUploaderID string      `json:"firstUploaderId,omitempty"`
	Uploaders       []*UserNode `json:"uploaders"`
}

// Lineage is the payload of the lineage read endpoint.
type Lineage struct {
	VerificationResult json.RawMessage `json:"verificationResult"`
	UploaderHierarchy  *UploaderTree   `json:"uploaderHierarchy"`
}
