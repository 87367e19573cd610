package app

import "timed-quiz-service/internal/domain"

// DefaultQuestions is the built-in set served when no question source answers.
func DefaultQuestions() []domain.Question {
	return []domain.Question{
		{
			ID:   "default-1",
			Text: "Which keyword is used to inherit a class in Java?",
			Options: domain.Options{
				{Label: "A", Text: "implements"},
				{Label: "B", Text: "extends"},
				{Label: "C", Text: "inherits"},
				{Label: "D", Text: "super"},
			},
			Answer: "B",
		},
		{
			ID:   "default-2",
			Text: "What is the default value of an int field in Java?",
			Options: domain.Options{
				{Label: "A", Text: "0"},
				{Label: "B", Text: "null"},
				{Label: "C", Text: "1"},
				{Label: "D", Text: "undefined"},
			},
			Answer: "A",
		},
		{
			ID:   "default-3",
			Text: "Which collection does not allow duplicate elements?",
			Options: domain.Options{
				{Label: "A", Text: "List"},
				{Label: "B", Text: "ArrayList"},
				{Label: "C", Text: "Set"},
				{Label: "D", Text: "Queue"},
			},
			Answer: "C",
		},
		{
			ID:   "default-4",
			Text: "Which method is the entry point of a Java application?",
			Options: domain.Options{
				{Label: "A", Text: "start()"},
				{Label: "B", Text: "run()"},
				{Label: "C", Text: "init()"},
				{Label: "D", Text: "main()"},
			},
			Answer: "D",
		},
		{
			ID:   "default-5",
			Text: "Which access modifier makes a member visible only within its class?",
			Options: domain.Options{
				{Label: "A", Text: "private"},
				{Label: "B", Text: "protected"},
				{Label: "C", Text: "public"},
				{Label: "D", Text: "package-private"},
			},
			Answer: "A",
		},
	}
}
