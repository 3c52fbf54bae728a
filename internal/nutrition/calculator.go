// Package nutrition previews daily calorie and macro targets locally, using
// the same formulas the backend applies when it stores a plan.
package nutrition

import (
	"math"

	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/pkg/validator"
)

const (
	GenderMale   = "male"
	GenderFemale = "female"

	GoalLose     = "lose"
	GoalMaintain = "maintain"
	GoalGain     = "gain"

	// goalOffset is the daily deficit or surplus for a lose or gain goal.
	goalOffset = 500

	defaultActivityMultiplier = 1.2
)

var activityMultipliers = map[string]float64{
	"sedentary": 1.2,
	"light":     1.375,
	"moderate":  1.55,
	"active":    1.725,
	"extra":     1.9,
}

// Macro split of target calories, and energy per gram.
const (
	proteinShare = 0.25
	carbsShare   = 0.45
	fatShare     = 0.30

	kcalPerGramProtein = 4
	kcalPerGramCarbs   = 4
	kcalPerGramFat     = 9
)

// Input is the patient data a plan is computed from.
type Input struct {
	Age           int     `json:"age" validate:"required,gte=1,lte=120"`
	Gender        string  `json:"gender" validate:"required,oneof=male female"`
	Height        float64 `json:"height" validate:"required,gte=50,lte=300"`
	Weight        float64 `json:"weight" validate:"required,gte=20,lte=500"`
	ActivityLevel string  `json:"activity_level" validate:"required,oneof=sedentary light moderate active extra"`
	Goal          string  `json:"goal" validate:"required,oneof=lose maintain gain"`
	DiseaseIDs    []int   `json:"disease_ids" validate:"omitempty,dive,gt=0"`
}

// Result mirrors the backend's calculate response.
type Result struct {
	BMR               float64 `json:"bmr"`
	TDEE              float64 `json:"tdee"`
	TargetCalories    float64 `json:"target_calories"`
	ProteinGrams      float64 `json:"protein_grams"`
	CarbsGrams        float64 `json:"carbs_grams"`
	FatGrams          float64 `json:"fat_grams"`
	DiseaseAdjustment float64 `json:"disease_adjustment"`
	AppliedDiseaseIDs []int   `json:"applied_disease_ids"`
}

// Calculator computes plans against a disease catalog.
type Calculator struct {
	catalog Catalog
}

// NewCalculator creates a calculator. A nil catalog applies no disease
// adjustments.
func NewCalculator(catalog Catalog) *Calculator {
	if catalog == nil {
		catalog = StaticCatalog(nil)
	}
	return &Calculator{catalog: catalog}
}

// Calculate validates in and computes the plan. Disease IDs the catalog does
// not know are skipped; a repeated ID counts once.
func (c *Calculator) Calculate(in Input) (*Result, error) {
	if err := validator.Validate(in); err != nil {
		return nil, err
	}

	bmr := BMR(in.Gender, in.Weight, in.Height, in.Age)
	tdee := bmr * ActivityMultiplier(in.ActivityLevel)
	target := TargetCalories(tdee, in.Goal)

	applied := make([]int, 0, len(in.DiseaseIDs))
	seen := make(map[int]struct{}, len(in.DiseaseIDs))
	var adjustment float64
	for _, id := range in.DiseaseIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		d, ok := c.catalog.Disease(id)
		if !ok {
			continue
		}
		adjustment += d.CalorieAdjustment
		applied = append(applied, id)
	}
	target += adjustment

	protein, carbs, fat := Macros(target)
	return &Result{
		BMR:               round2(bmr),
		TDEE:              round2(tdee),
		TargetCalories:    round2(target),
		ProteinGrams:      round2(protein),
		CarbsGrams:        round2(carbs),
		FatGrams:          round2(fat),
		DiseaseAdjustment: adjustment,
		AppliedDiseaseIDs: applied,
	}, nil
}

// BMR is the Mifflin-St Jeor basal metabolic rate. Any gender other than male
// uses the female constant.
func BMR(gender string, weightKg, heightCm float64, age int) float64 {
	base := 10*weightKg + 6.25*heightCm - 5*float64(age)
	if gender == GenderMale {
		return base + 5
	}
	return base - 161
}

// ActivityMultiplier returns the TDEE factor for level, 1.2 when unknown.
func ActivityMultiplier(level string) float64 {
	if m, ok := activityMultipliers[level]; ok {
		return m
	}
	return defaultActivityMultiplier
}

// TargetCalories applies the goal offset to tdee.
func TargetCalories(tdee float64, goal string) float64 {
	switch goal {
	case GoalLose:
		return tdee - goalOffset
	case GoalGain:
		return tdee + goalOffset
	default:
		return tdee
	}
}

// Macros splits target calories into protein, carbohydrate and fat grams.
func Macros(target float64) (protein, carbs, fat float64) {
	return target * proteinShare / kcalPerGramProtein,
		target * carbsShare / kcalPerGramCarbs,
		target * fatShare / kcalPerGramFat
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
