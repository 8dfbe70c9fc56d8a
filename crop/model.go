package crop

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// PlantImage is the optional photo attached to step 1.
type PlantImage struct {
	MimeType string `json:"mime_type"`
	Data     []byte `json:"-"`
}

// UserData is captured once at step 1 and never mutated afterwards.
type UserData struct {
	Crop        string      `json:"crop"`
	DaysPlanted int         `json:"days_planted"`
	PlantImage  *PlantImage `json:"plant_image,omitempty"`
}

// DiseaseInfo is a disease candidate. Name is the identity key within a session.
type DiseaseInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url,omitempty"`
}

// Selectable reports whether the candidate has a resolved visualization.
func (d DiseaseInfo) Selectable() bool { return d.ImageURL != "" }

// SolutionInfo is the three-category action plan.
type SolutionInfo struct {
	ImmediateActions      []string `json:"immediateActions"`
	RecommendedTreatments []string `json:"recommendedTreatments"`
	LongTermPrevention    []string `json:"longTermPrevention"`
}

// Complete reports whether every category carries at least one item.
func (s SolutionInfo) Complete() bool {
	return len(s.ImmediateActions) > 0 && len(s.RecommendedTreatments) > 0 && len(s.LongTermPrevention) > 0
}

// ReadAloudScript renders the plan as the text handed to the speech service.
func (s SolutionInfo) ReadAloudScript(diseaseName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Action plan for %s.\n", diseaseName)
	fmt.Fprintf(&b, "Immediate Actions: %s.\n", strings.Join(s.ImmediateActions, ". "))
	fmt.Fprintf(&b, "Recommended Treatments: %s.\n", strings.Join(s.RecommendedTreatments, ". "))
	fmt.Fprintf(&b, "Long-Term Prevention: %s.", strings.Join(s.LongTermPrevention, ". "))
	return b.String()
}

// Messages shown next to the step-1 form.
const (
	MsgRequiredFields = "Please fill in crop and planting day information."
	MsgInvalidDays    = "Days since planting must be a whole number of at least 1."
	MsgInvalidImage   = "Please upload a valid image file (e.g., JPEG, PNG)."
	MsgUnreadable     = "Failed to read the image file."
)

// NewUserData validates raw form values and builds the immutable UserData.
// days is the text the user typed; it must parse as an integer >= 1.
func NewUserData(cropName, days string, image *PlantImage) (UserData, error) {
	cropName = strings.TrimSpace(cropName)
	days = strings.TrimSpace(days)
	if cropName == "" || days == "" {
		return UserData{}, &ValidationError{Field: "crop", Message: MsgRequiredFields}
	}
	n, err := strconv.Atoi(days)
	if err != nil || n < 1 {
		return UserData{}, &ValidationError{Field: "days_planted", Message: MsgInvalidDays}
	}
	ud := UserData{Crop: cropName, DaysPlanted: n, PlantImage: image}
	if err := ud.Validate(); err != nil {
		return UserData{}, err
	}
	return ud, nil
}

// Validate checks the invariants of an already-typed UserData.
func (u UserData) Validate() error {
	if strings.TrimSpace(u.Crop) == "" {
		return &ValidationError{Field: "crop", Message: MsgRequiredFields}
	}
	if u.DaysPlanted < 1 {
		return &ValidationError{Field: "days_planted", Message: MsgInvalidDays}
	}
	if u.PlantImage != nil {
		if !strings.HasPrefix(u.PlantImage.MimeType, "image/") {
			return &ValidationError{Field: "photo", Message: MsgInvalidImage}
		}
		if len(u.PlantImage.Data) == 0 {
			return &ValidationError{Field: "photo", Message: MsgUnreadable}
		}
	}
	return nil
}

// UnreadableImage is returned by form readers when the upload cannot be read.
func UnreadableImage(cause error) error {
	return &ValidationError{Field: "photo", Message: MsgUnreadable, Err: cause}
}

// DataURI encodes an image payload as a data: reference.
func DataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURI is the inverse of DataURI.
func DecodeDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data uri")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data uri")
	}
	mimeType, isB64 := strings.CutSuffix(meta, ";base64")
	if !isB64 {
		return "", nil, fmt.Errorf("data uri is not base64")
	}
	b, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, err
	}
	return mimeType, b, nil
}
