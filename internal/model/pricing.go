package model

// Mode is the generation workflow variant. It determines the billing
// multiplier for the pre-flight affordability check.
type Mode string

const (
	ModeGen     Mode = "gen"     // single image from prompt
	ModeProduct Mode = "product" // five product shots
	ModePoses   Mode = "poses"   // 1..10 pose variations
	ModeRef     Mode = "ref"     // reference-pair, single image
)

const (
	ProductImageCount = 5
	MaxPosesCount     = 10
)

const DefaultModelID = "google/gemini-2.5-flash-image"

// Per-image price in credits, keyed by the OpenRouter model id.
var modelPrices = map[string]int{
	"google/gemini-2.5-flash-image":     10,
	"google/gemini-3-pro-image-preview": 25,
}

type ModelInfo struct {
	ID    string `json:"id"`
	Price int    `json:"price"`
}

// PriceForModel returns the per-image price, 0 for unknown models.
// A zero price also means the model is never charged.
func PriceForModel(modelID string) int {
	return modelPrices[modelID]
}

func IsKnownModel(modelID string) bool {
	_, ok := modelPrices[modelID]
	return ok
}

func AvailableModels() []ModelInfo {
	models := make([]ModelInfo, 0, len(modelPrices))
	for id, price := range modelPrices {
		models = append(models, ModelInfo{ID: id, Price: price})
	}
	return models
}

// Multiplier returns the image count a mode bills for up front.
// The poses count is clamped to [1, MaxPosesCount] regardless of caller input.
func Multiplier(mode Mode, count int) int {
	switch mode {
	case ModeProduct:
		return ProductImageCount
	case ModePoses:
		return ClampPosesCount(count)
	default:
		return 1
	}
}

func ClampPosesCount(count int) int {
	if count < 1 {
		return 1
	}
	if count > MaxPosesCount {
		return MaxPosesCount
	}
	return count
}
