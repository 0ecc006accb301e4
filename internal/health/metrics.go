package health

import "math"

const (
	poundsToKg   = 0.453592
	inchesToCm   = 2.54
	projectWeeks = 12
)

var activityMultipliers = map[string]float64{
	"sedentary":   1.2,
	"light":       1.375,
	"moderate":    1.55,
	"active":      1.725,
	"very_active": 1.9,
}

// Metrics are the values derived from a profile and the latest weight.
type Metrics struct {
	Weight          float64 `json:"weight"`
	BMI             float64 `json:"bmi"`
	BMICategory     string  `json:"bmi_category"`
	BMR             float64 `json:"bmr"`
	TDEE            float64 `json:"tdee"`
	CalorieTarget   float64 `json:"calorie_target"`
	DietDeficit     float64 `json:"diet_deficit"`
	ExerciseDeficit float64 `json:"exercise_deficit"`
	ProteinGrams    float64 `json:"protein_grams"`
	FatGrams        float64 `json:"fat_grams"`
	CarbGrams       float64 `json:"carb_grams"`
	WeeklyChange    float64 `json:"weekly_change"`
	ProjectedWeight float64 `json:"projected_weight"`
	ProjectionWeeks int     `json:"projection_weeks"`
}

// Derive computes BMI, Mifflin-St Jeor BMR, TDEE, the calorie target, macros and a
// 12 week projection. weightLbs must be positive.
func Derive(p Profile, weightLbs float64) Metrics {
	bmi := weightLbs / (p.HeightInches * p.HeightInches) * 703

	weightKg := weightLbs * poundsToKg
	heightCm := p.HeightInches * inchesToCm
	bmr := 10*weightKg + 6.25*heightCm - 5*float64(p.Age)
	if p.Gender == "male" {
		bmr += 5
	} else {
		bmr -= 161
	}

	multiplier, ok := activityMultipliers[p.ActivityLevel]
	if !ok {
		multiplier = 1.2
	}
	tdee := bmr * multiplier

	var dietDeficit, exerciseDeficit float64
	if p.Goal == "fat_loss" {
		dietDeficit, exerciseDeficit = 300, 200
	}
	target := tdee - dietDeficit

	protein := weightLbs
	fat := target * 0.25 / 9
	carbs := (target - (protein*4 + fat*9)) / 4

	var weekly float64
	switch p.Goal {
	case "fat_loss":
		weekly = -1
	case "muscle_gain":
		weekly = 0.6
	}

	return Metrics{
		Weight:          weightLbs,
		BMI:             round1(bmi),
		BMICategory:     bmiCategory(bmi),
		BMR:             math.Round(bmr),
		TDEE:            math.Round(tdee),
		CalorieTarget:   math.Round(target),
		DietDeficit:     dietDeficit,
		ExerciseDeficit: exerciseDeficit,
		ProteinGrams:    math.Round(protein),
		FatGrams:        math.Round(fat),
		CarbGrams:       math.Round(carbs),
		WeeklyChange:    weekly,
		ProjectedWeight: round1(weightLbs + weekly*projectWeeks),
		ProjectionWeeks: projectWeeks,
	}
}

func bmiCategory(bmi float64) string {
	switch {
	case bmi < 18.5:
		return "Underweight"
	case bmi < 25:
		return "Normal"
	case bmi < 30:
		return "Overweight"
	default:
		return "Obese"
	}
}

// Targets are the daily nutrition goals for the food log.
type Targets struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
	Fiber    float64 `json:"fiber"`
}

// DailyTargets derives food log goals. Protein defaults to 150 g without a weigh-in.
func DailyTargets(p Profile, calorieTarget, latestWeight float64) Targets {
	protein := latestWeight
	if protein <= 0 {
		protein = 150
	}
	fat := math.Round(calorieTarget * 0.25 / 9)
	carbs := math.Round((calorieTarget - (protein*4 + fat*9)) / 4)
	fiber := 35.0
	if p.Gender == "female" {
		fiber = 25
	}
	return Targets{Calories: math.Round(calorieTarget), Protein: math.Round(protein), Carbs: carbs, Fat: fat, Fiber: fiber}
}

// Totals sums the macros of meals.
func Totals(meals []Meal) Macros {
	var t Macros
	for _, m := range meals {
		t.Calories += m.Calories
		t.Protein += m.Protein
		t.Carbs += m.Carbs
		t.Fat += m.Fat
		t.Fiber += m.Fiber
	}
	return t
}

// Percentages reports each total as a rounded percentage of its target (0 when the
// target is not positive).
func Percentages(total Macros, target Targets) map[string]int {
	return map[string]int{
		"calories": percent(total.Calories, target.Calories),
		"protein":  percent(total.Protein, target.Protein),
		"carbs":    percent(total.Carbs, target.Carbs),
		"fat":      percent(total.Fat, target.Fat),
		"fiber":    percent(total.Fiber, target.Fiber),
	}
}

func percent(value, target float64) int {
	if target <= 0 {
		return 0
	}
	return int(math.Round(value / target * 100))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
