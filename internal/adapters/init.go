// Package adapters registers all instrument adapters with the core registry.
// Import this package to ensure all adapters are registered.
package adapters

// This file exists to provide a single import point.
// Each instrument file uses init() to register its adapters.
