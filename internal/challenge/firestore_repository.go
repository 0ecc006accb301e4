package challenge

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type firestoreRepository struct {
	client *firestore.Client
}

// NewFirestoreRepository instantiates a Firestore-backed repository. Documents live at
// users/{uid}/challenges/{id}.
func NewFirestoreRepository(client *firestore.Client) Repository {
	return &firestoreRepository{client: client}
}

func (r *firestoreRepository) userCollection(userID string) *firestore.CollectionRef {
	return r.client.Collection("users").Doc(userID).Collection(challengesCollection)
}

type taskDoc struct {
	Name   string  `firestore:"name"`
	Unit   string  `firestore:"unit"`
	Target float64 `firestore:"target"`
}

type progressDoc struct {
	Day           int               `firestore:"day"`
	CompletedDays []int             `firestore:"completedDays"`
	PerfectDays   []int             `firestore:"perfectDays"`
	LongestStreak int               `firestore:"longestStreak"`
	Photos        map[string]string `firestore:"photos"`
}

type historyDoc struct {
	CompletedAt      time.Time         `firestore:"completedAt"`
	LongestStreak    int               `firestore:"longestStreak"`
	PerfectDaysCount int               `firestore:"perfectDaysCount"`
	Photos           map[string]string `firestore:"photos,omitempty"`
}

type challengeDoc struct {
	Name             string       `firestore:"name"`
	Duration         int          `firestore:"duration"`
	Tasks            []taskDoc    `firestore:"tasks"`
	Progress         progressDoc  `firestore:"progress"`
	History          []historyDoc `firestore:"history"`
	TotalCompletions int          `firestore:"totalCompletions"`
	CreatedAt        time.Time    `firestore:"createdAt"`
	UpdatedAt        time.Time    `firestore:"updatedAt"`
}

func (r *firestoreRepository) Create(ctx context.Context, c Challenge) error {
	tasks := make([]taskDoc, len(c.Tasks))
	for i, t := range c.Tasks {
		tasks[i] = taskDoc(t)
	}
	doc := challengeDoc{
		Name:             c.Name,
		Duration:         c.Duration,
		Tasks:            tasks,
		Progress:         toProgressDoc(c.Progress),
		History:          toHistoryDocs(c.History),
		TotalCompletions: c.TotalCompletions,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}

	_, err := r.userCollection(c.UserID).Doc(c.ID).Create(ctx, doc)
	if status.Code(err) == codes.AlreadyExists {
		return ErrConflict
	}
	return err
}

func (r *firestoreRepository) Get(ctx context.Context, userID, id string) (Challenge, error) {
	snap, err := r.userCollection(userID).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return Challenge{}, ErrNotFound
	}
	if err != nil {
		return Challenge{}, err
	}
	return snapshotToChallenge(userID, snap)
}

func (r *firestoreRepository) List(ctx context.Context, userID string) ([]Challenge, error) {
	iter := r.userCollection(userID).Documents(ctx)
	defer iter.Stop()
	return collect(userID, iter)
}

func (r *firestoreRepository) SaveProgress(ctx context.Context, userID, id string, update ProgressUpdate) error {
	_, err := r.userCollection(userID).Doc(id).Update(ctx, []firestore.Update{
		{Path: "progress", Value: toProgressDoc(update.Progress)},
		{Path: "history", Value: toHistoryDocs(update.History)},
		{Path: "totalCompletions", Value: update.TotalCompletions},
		{Path: "updatedAt", Value: update.UpdatedAt},
	})
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	return err
}

func (r *firestoreRepository) SetPhoto(ctx context.Context, userID, id string, day int, ref string, updatedAt time.Time) error {
	_, err := r.userCollection(userID).Doc(id).Update(ctx, []firestore.Update{
		{FieldPath: firestore.FieldPath{"progress", "photos", strconv.Itoa(day)}, Value: ref},
		{Path: "updatedAt", Value: updatedAt},
	})
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	return err
}

func (r *firestoreRepository) Delete(ctx context.Context, userID, id string) error {
	ref := r.userCollection(userID).Doc(id)
	_, err := ref.Delete(ctx, firestore.Exists)
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	return err
}

// Watch follows the collection with a realtime listener. The first snapshot is read
// synchronously so setup failures surface to the caller.
func (r *firestoreRepository) Watch(ctx context.Context, userID string) (<-chan []Challenge, error) {
	it := r.userCollection(userID).Snapshots(ctx)

	first, err := nextSnapshot(userID, it)
	if err != nil {
		it.Stop()
		return nil, err
	}

	ch := make(chan []Challenge, 1)
	ch <- first
	go func() {
		defer close(ch)
		defer it.Stop()
		for {
			items, err := nextSnapshot(userID, it)
			if err != nil {
				// cancellation or a broken stream both end the subscription
				return
			}
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- items:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func nextSnapshot(userID string, it *firestore.QuerySnapshotIterator) ([]Challenge, error) {
	qs, err := it.Next()
	if err != nil {
		return nil, err
	}
	return collect(userID, qs.Documents)
}

func collect(userID string, iter *firestore.DocumentIterator) ([]Challenge, error) {
	out := make([]Challenge, 0)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		c, err := snapshotToChallenge(userID, snap)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	sortByCreation(out)
	return out, nil
}

func snapshotToChallenge(userID string, snap *firestore.DocumentSnapshot) (Challenge, error) {
	var doc challengeDoc
	if err := snap.DataTo(&doc); err != nil {
		return Challenge{}, fmt.Errorf("decode challenge %s: %w", snap.Ref.ID, err)
	}

	tasks := make([]Task, len(doc.Tasks))
	for i, t := range doc.Tasks {
		tasks[i] = Task(t)
	}
	history := make([]HistoryEntry, len(doc.History))
	for i, h := range doc.History {
		history[i] = HistoryEntry{
			CompletedAt:      h.CompletedAt,
			LongestStreak:    h.LongestStreak,
			PerfectDaysCount: h.PerfectDaysCount,
			Photos:           photosFromDoc(h.Photos),
		}
	}

	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = snap.CreateTime
	}
	updatedAt := doc.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = snap.UpdateTime
	}

	return Challenge{
		ID:       snap.Ref.ID,
		UserID:   userID,
		Name:     doc.Name,
		Duration: doc.Duration,
		Tasks:    tasks,
		Progress: Progress{
			Day:           doc.Progress.Day,
			CompletedDays: doc.Progress.CompletedDays,
			PerfectDays:   doc.Progress.PerfectDays,
			LongestStreak: doc.Progress.LongestStreak,
			Photos:        photosFromDoc(doc.Progress.Photos),
		},
		History:          history,
		TotalCompletions: doc.TotalCompletions,
		CreatedAt:        createdAt,
		UpdatedAt:        updatedAt,
	}, nil
}

func toProgressDoc(p Progress) progressDoc {
	p = p.Clone()
	return progressDoc{
		Day:           p.Day,
		CompletedDays: p.CompletedDays,
		PerfectDays:   p.PerfectDays,
		LongestStreak: p.LongestStreak,
		Photos:        photosToDoc(p.Photos),
	}
}

func toHistoryDocs(history []HistoryEntry) []historyDoc {
	out := make([]historyDoc, len(history))
	for i, h := range history {
		out[i] = historyDoc{
			CompletedAt:      h.CompletedAt,
			LongestStreak:    h.LongestStreak,
			PerfectDaysCount: h.PerfectDaysCount,
		}
		if len(h.Photos) > 0 {
			out[i].Photos = photosToDoc(h.Photos)
		}
	}
	return out
}

// Firestore map keys must be strings.
func photosToDoc(photos map[int]string) map[string]string {
	out := make(map[string]string, len(photos))
	for day, ref := range photos {
		out[strconv.Itoa(day)] = ref
	}
	return out
}

func photosFromDoc(photos map[string]string) map[int]string {
	out := make(map[int]string, len(photos))
	for key, ref := range photos {
		day, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		out[day] = ref
	}
	return out
}
