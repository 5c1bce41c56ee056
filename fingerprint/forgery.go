package fingerprint

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"credify/apperr"
	"credify/models"
)

// Verdict is the interpreted answer of the forgery detector.
type Verdict struct {
	IsManipulated           bool
	ManipulationProbability float64
	DetectionMethods        models.DetectionMethods
}

// score accepts a JSON number or a numeric string. Anything else is 0.
type score float64

func (s *score) UnmarshalJSON(b []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(b)), `"`)
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*s = 0
		return nil
	}
	*s = score(f)
	return nil
}

type detector struct {
	IsManipulated        *bool `json:"is_manipulated"`
	IsGAN                *bool `json:"is_gan"`
	IsDeepfake           *bool `json:"is_deepfake"`
	Confidence           score `json:"confidence"`
	FakeConfidence       score `json:"fake_confidence"`
	CollectiveDetection  *bool `json:"collective_detection"`
	CollectiveConfidence score `json:"collective_confidence"`
}

type forgeryResponse struct {
	ImageManipulation *detector `json:"image_manipulation"`
	GANDetection      *detector `json:"gan_detection"`
	FaceManipulation  *detector `json:"face_manipulation"`
	AudioDeepfake     *bool     `json:"audio_deepfake"`
}

// DetectForgery runs the forgery detector on info. Only images and videos
// are supported.
func (c *Client) DetectForgery(ctx context.Context, info models.ContentInfo) (Verdict, error) {
	const op = "fingerprint.DetectForgery"
	if info.MediaType != models.MediaImage && info.MediaType != models.MediaVideo {
		return Verdict{}, apperr.Validation(op, "Unsupported file type: %s", Extension(info.Filename))
	}
	ctx, cancel := withTimeout(ctx, c.opts.ForgeryTimeout)
	defer cancel()

	var raw json.RawMessage
	if err := c.postJSON(ctx, op, c.baseURL+"/detect_forgery", map[string]string{"file_url": info.URL}, &raw); err != nil {
		return Verdict{}, err
	}
	v, err := parseVerdict(info.MediaType, raw)
	if err != nil {
		return Verdict{}, apperr.Wrap(apperr.ExternalServiceError, op, err, "malformed response")
	}
	return v, nil
}

// parseVerdict interprets a raw detector response for the given media type.
func parseVerdict(media models.MediaType, raw []byte) (Verdict, error) {
	var resp forgeryResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Verdict{}, err
	}
	if media == models.MediaVideo {
		return interpretVideo(resp), nil
	}
	return interpretImage(resp), nil
}

func isTrue(b *bool) bool { return b != nil && *b }

func interpretImage(r forgeryResponse) Verdict {
	im, gan, face := orEmpty(r.ImageManipulation), orEmpty(r.GANDetection), orEmpty(r.FaceManipulation)
	return Verdict{
		IsManipulated:           isTrue(im.IsManipulated) || isTrue(gan.IsGAN) || isTrue(face.IsDeepfake),
		ManipulationProbability: maxScore(im.Confidence, gan.FakeConfidence, face.Confidence),
		DetectionMethods: models.DetectionMethods{
			ImageManipulation: im.IsManipulated,
			GANGenerated:      gan.IsGAN,
			FaceManipulation:  face.IsDeepfake,
		},
	}
}

func interpretVideo(r forgeryResponse) Verdict {
	im, gan, face := orEmpty(r.ImageManipulation), orEmpty(r.GANDetection), orEmpty(r.FaceManipulation)
	return Verdict{
		IsManipulated: isTrue(im.CollectiveDetection) || isTrue(face.CollectiveDetection) ||
			isTrue(gan.CollectiveDetection) || isTrue(r.AudioDeepfake),
		ManipulationProbability: maxScore(im.CollectiveConfidence, face.CollectiveConfidence, gan.CollectiveConfidence),
		DetectionMethods: models.DetectionMethods{
			ImageManipulation: im.CollectiveDetection,
			FaceManipulation:  face.CollectiveDetection,
			GANGenerated:      gan.CollectiveDetection,
			AudioDeepfake:     r.AudioDeepfake,
		},
	}
}

func orEmpty(d *detector) detector {
	if d == nil {
		return detector{}
	}
	return *d
}

func maxScore(scores ...score) float64 {
	var m float64
	for _, s := range scores {
		if float64(s) > m {
			m = float64(s)
		}
	}
	return m
}
