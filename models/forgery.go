package models

import "time"

// DetectionMethods are the per-detector verdicts. Nil means the detector
// did not report.
type DetectionMethods struct {
	ImageManipulation *bool `json:"imageManipulation,omitempty" bson:"imageManipulation,omitempty"`
	GANGenerated      *bool `json:"ganGenerated,omitempty" bson:"ganGenerated,omitempty"`
	FaceManipulation  *bool `json:"faceManipulation,omitempty" bson:"faceManipulation,omitempty"`
	AudioDeepfake     *bool `json:"audioDeepfake,omitempty" bson:"audioDeepfake,omitempty"`
}

// ForgeryDetectionResult is the cached state of one forgery-detection run.
type ForgeryDetectionResult struct {
	ContentID               string           `json:"contentId"`
	Status                  Status           `json:"status"`
	ContentType             MediaType        `json:"contentType,omitempty"`
	IsManipulated           bool             `json:"isManipulated"`
	ManipulationProbability float64          `json:"manipulationProbability"`
	DetectionMethods        DetectionMethods `json:"detectionMethods"`
	Message                 string           `json:"message,omitempty"`
	UpdatedAt               time.Time        `json:"updatedAt"`
}
