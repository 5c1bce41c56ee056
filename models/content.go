package models

import "time"

// VerifiedContent is the durable record written once per verified upload.
// The graph only holds relationships; this is what the UI reads back.
type VerifiedContent struct {
	ID                  string    `bson:"_id" json:"id"`
	ContentHash         string    `bson:"contentHash" json:"contentHash"`
	ContentID           string    `bson:"contentId" json:"contentId"`
	UserID              string    `bson:"userId" json:"userId"`
	VideoHash           string    `bson:"videoHash,omitempty" json:"videoHash,omitempty"`
	ImageHash           string    `bson:"imageHash,omitempty" json:"imageHash,omitempty"`
	CollectiveAudioHash string    `bson:"collectiveAudioHash,omitempty" json:"collectiveAudioHash,omitempty"`
	MediaTitle          string    `bson:"mediaTitle" json:"mediaTitle"`
	MediaType           string    `bson:"mediaType" json:"mediaType"`
	FactCheck           string    `bson:"factCheck,omitempty" json:"factCheck,omitempty"`
	VerificationDate    time.Time `bson:"verificationDate" json:"verificationDate"`

	IsManipulated           *bool            `bson:"isManipulated,omitempty" json:"isManipulated,omitempty"`
	ManipulationProbability *float64         `bson:"manipulationProbability,omitempty" json:"manipulationProbability,omitempty"`
	DetectionMethods        DetectionMethods `bson:"detectionMethods,omitempty" json:"detectionMethods"`
}

// ManipulationAnnotation is the forgery verdict merged into a record.
type ManipulationAnnotation struct {
	IsManipulated           bool
	ManipulationProbability float64
	DetectionMethods        DetectionMethods
}
