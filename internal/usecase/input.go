package usecase

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/example/imagecheck/internal/repository"
)

// SubmitInput is the schema of a check result submission.
type SubmitInput struct {
	ImageURL        string   `json:"imageUrl" validate:"required"`
	SocialMediaName string   `json:"socialMediaName" validate:"required"`
	RecognizedFace  string   `json:"recognizedFace" validate:"omitempty,max=255"`
	Result          string   `json:"result" validate:"omitempty,oneof=REAL FAKE UNKNOWN"`
	Confidence      *float64 `json:"confidence" validate:"omitempty,gte=0,lte=1"`
}

// normalize trims whitespace and upper-cases the outcome label.
func (in SubmitInput) normalize() SubmitInput {
	in.ImageURL = strings.TrimSpace(in.ImageURL)
	in.SocialMediaName = strings.TrimSpace(in.SocialMediaName)
	in.RecognizedFace = strings.TrimSpace(in.RecognizedFace)
	in.Result = strings.ToUpper(strings.TrimSpace(in.Result))
	return in
}

func (in SubmitInput) toRecord() repository.NewCheckResult {
	return repository.NewCheckResult{
		ImageURL:        in.ImageURL,
		SocialMediaName: in.SocialMediaName,
		RecognizedFace:  in.RecognizedFace,
		Result:          in.Result,
		Confidence:      in.Confidence,
	}
}

const (
	msgImageURLMissing        = "Image URL not provided"
	msgSocialMediaNameMissing = "Social media name not provided"
)

var labelPattern = regexp.MustCompile(`^[A-Za-z0-9_.\-:]{1,255}$`)

func newValidator() *validator.Validate {
	return validator.New()
}

// validationError converts the first validator failure into a ValidationError.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ValidationError{Message: err.Error()}
	}

	fe := fieldErrs[0]
	switch fe.Field() {
	case "ImageURL":
		return &ValidationError{Field: "imageUrl", Message: msgImageURLMissing}
	case "SocialMediaName":
		return &ValidationError{Field: "socialMediaName", Message: msgSocialMediaNameMissing}
	case "Result":
		return &ValidationError{Field: "result", Message: "result must be one of REAL, FAKE, UNKNOWN"}
	case "Confidence":
		return &ValidationError{Field: "confidence", Message: "confidence must be between 0 and 1"}
	case "RecognizedFace":
		return &ValidationError{Field: "recognizedFace", Message: "recognizedFace must be at most 255 characters"}
	default:
		return &ValidationError{Field: fe.Field(), Message: fmt.Sprintf("%s is invalid", fe.Field())}
	}
}
