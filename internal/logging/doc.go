// Package logging builds the structured slog logger shared by every component.
package logging
