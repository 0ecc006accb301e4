package challenge

// DefaultTemplate is offered to users whose catalog is empty on first sign-in.
func DefaultTemplate() CreateInput {
	return CreateInput{
		Name:     "75 Hard",
		Duration: 75,
		Tasks: []TaskInput{
			{Name: "Workouts", Unit: "sessions", Target: 2},
			{Name: "Drink water", Unit: "oz", Target: 128},
			{Name: "Read", Unit: "pages", Target: 10},
			{Name: "Follow diet", Target: 1},
			{Name: "Progress photo", Target: 1},
		},
	}
}
