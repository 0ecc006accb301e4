package health

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type firestoreRepository struct {
	client *firestore.Client
}

// NewFirestoreRepository keeps the profile on users/{uid} and the logs in its
// weeklyMetrics, dailyLogs/{date}/meals and mealTemplates subcollections.
func NewFirestoreRepository(client *firestore.Client) Repository {
	return &firestoreRepository{client: client}
}

func (r *firestoreRepository) user(userID string) *firestore.DocumentRef {
	return r.client.Collection("users").Doc(userID)
}

type profileDoc struct {
	Height        float64   `firestore:"height"`
	Age           int       `firestore:"age"`
	Gender        string    `firestore:"gender"`
	ActivityLevel string    `firestore:"activityLevel"`
	Goal          string    `firestore:"goal"`
	UpdatedAt     time.Time `firestore:"healthUpdatedAt"`
}

type metricDoc struct {
	Weight    float64   `firestore:"weight"`
	Chest     float64   `firestore:"chest"`
	Arms      float64   `firestore:"arms"`
	Waist     float64   `firestore:"waist"`
	Thighs    float64   `firestore:"thighs"`
	CreatedAt time.Time `firestore:"createdAt"`
}

type mealDoc struct {
	MealType  string    `firestore:"mealType"`
	Name      string    `firestore:"name"`
	Calories  float64   `firestore:"calories"`
	Protein   float64   `firestore:"protein"`
	Carbs     float64   `firestore:"carbs"`
	Fat       float64   `firestore:"fat"`
	Fiber     float64   `firestore:"fiber"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func (r *firestoreRepository) GetProfile(ctx context.Context, userID string) (Profile, error) {
	snap, err := r.user(userID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, err
	}
	var doc profileDoc
	if err := snap.DataTo(&doc); err != nil {
		return Profile{}, fmt.Errorf("decode profile %s: %w", userID, err)
	}
	// the user document also carries non-health fields
	if doc.Height == 0 && doc.Gender == "" {
		return Profile{}, ErrNotFound
	}
	return Profile{
		HeightInches:  doc.Height,
		Age:           doc.Age,
		Gender:        doc.Gender,
		ActivityLevel: doc.ActivityLevel,
		Goal:          doc.Goal,
		UpdatedAt:     doc.UpdatedAt,
	}, nil
}

func (r *firestoreRepository) SaveProfile(ctx context.Context, userID string, p Profile) error {
	_, err := r.user(userID).Set(ctx, map[string]any{
		"height":          p.HeightInches,
		"age":             p.Age,
		"gender":          p.Gender,
		"activityLevel":   p.ActivityLevel,
		"goal":            p.Goal,
		"healthUpdatedAt": p.UpdatedAt,
	}, firestore.MergeAll)
	return err
}

func (r *firestoreRepository) AddWeeklyMetric(ctx context.Context, userID string, m WeeklyMetric) error {
	_, err := r.user(userID).Collection("weeklyMetrics").Doc(m.ID).Create(ctx, metricDoc{
		Weight: m.Weight, Chest: m.Chest, Arms: m.Arms, Waist: m.Waist, Thighs: m.Thighs, CreatedAt: m.CreatedAt,
	})
	return err
}

func (r *firestoreRepository) ListWeeklyMetrics(ctx context.Context, userID string) ([]WeeklyMetric, error) {
	iter := r.user(userID).Collection("weeklyMetrics").OrderBy("createdAt", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	out := make([]WeeklyMetric, 0)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		var doc metricDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode weekly metric %s: %w", snap.Ref.ID, err)
		}
		out = append(out, WeeklyMetric{
			ID: snap.Ref.ID, Weight: doc.Weight, Chest: doc.Chest, Arms: doc.Arms,
			Waist: doc.Waist, Thighs: doc.Thighs, CreatedAt: doc.CreatedAt,
		})
	}
	return out, nil
}

func (r *firestoreRepository) AddMeal(ctx context.Context, userID string, m Meal) error {
	ref := r.user(userID).Collection("dailyLogs").Doc(m.Date).Collection("meals").Doc(m.ID)
	_, err := ref.Create(ctx, toMealDoc(m.MealType, m.Name, m.Macros, m.CreatedAt))
	return err
}

func (r *firestoreRepository) ListMeals(ctx context.Context, userID, date string) ([]Meal, error) {
	iter := r.user(userID).Collection("dailyLogs").Doc(date).Collection("meals").
		OrderBy("createdAt", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	out := make([]Meal, 0)
	err := eachMeal(iter, func(id string, doc mealDoc) {
		out = append(out, Meal{
			ID: id, Date: date, MealType: doc.MealType, Name: doc.Name,
			Macros: doc.macros(), CreatedAt: doc.CreatedAt,
		})
	})
	return out, err
}

func (r *firestoreRepository) AddTemplate(ctx context.Context, userID string, t MealTemplate) error {
	_, err := r.user(userID).Collection("mealTemplates").Doc(t.ID).
		Create(ctx, toMealDoc(t.MealType, t.Name, t.Macros, t.CreatedAt))
	return err
}

func (r *firestoreRepository) ListTemplates(ctx context.Context, userID string) ([]MealTemplate, error) {
	iter := r.user(userID).Collection("mealTemplates").OrderBy("createdAt", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	out := make([]MealTemplate, 0)
	err := eachMeal(iter, func(id string, doc mealDoc) {
		out = append(out, MealTemplate{
			ID: id, MealType: doc.MealType, Name: doc.Name, Macros: doc.macros(), CreatedAt: doc.CreatedAt,
		})
	})
	return out, err
}

func toMealDoc(mealType, name string, m Macros, createdAt time.Time) mealDoc {
	return mealDoc{
		MealType: mealType, Name: name,
		Calories: m.Calories, Protein: m.Protein, Carbs: m.Carbs, Fat: m.Fat, Fiber: m.Fiber,
		CreatedAt: createdAt,
	}
}

func (d mealDoc) macros() Macros {
	return Macros{Calories: d.Calories, Protein: d.Protein, Carbs: d.Carbs, Fat: d.Fat, Fiber: d.Fiber}
}

func eachMeal(iter *firestore.DocumentIterator, fn func(id string, doc mealDoc)) error {
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return err
		}
		var doc mealDoc
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode meal %s: %w", snap.Ref.ID, err)
		}
		fn(snap.Ref.ID, doc)
	}
}
