// Package v1alpha1 contains the run report document written for every
// scenario run.
package v1alpha1

const (
	// Group is the API group of FBDAM documents.
	Group = "fbdam.foodbank.org"
	// Version is the API version of this package.
	Version = "v1alpha1"
	// APIVersion is Group/Version.
	APIVersion = Group + "/" + Version
)
