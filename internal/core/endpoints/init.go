// Package endpoints registers every polled API with the core registry.
// Import this package to ensure all endpoints are registered.
package endpoints

// This file exists to provide a single import point.
// Each section file uses init() to register its endpoints.
