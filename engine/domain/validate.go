package domain

import "fmt"

// ValidateChunking checks chunking parameters before a build.
func ValidateChunking(windowChars, overlapChars int) error {
	if windowChars <= 0 {
		return fmt.Errorf("validate: window_chars must be positive, got %d", windowChars)
	}
	if overlapChars < 0 {
		return fmt.Errorf("validate: overlap_chars must not be negative, got %d", overlapChars)
	}
	if overlapChars >= windowChars {
		return fmt.Errorf("validate: overlap_chars %d must be smaller than window_chars %d", overlapChars, windowChars)
	}
	return nil
}

// ValidateQuery checks a user question before orchestration.
func ValidateQuery(question string) error {
	if question == "" {
		return fmt.Errorf("validate: question is empty")
	}
	return nil
}
