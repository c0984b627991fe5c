// ABOUTME: Version information for ListenBuddy
// ABOUTME: Product identity shown by the CLIs and advertised over mDNS
package version

// Version is overridden at build time with -ldflags "-X ...version.Version=..."
var Version = "0.1.0"

const (
	// Product is the user-facing product name
	Product = "ListenBuddy"

	// Manufacturer is the project that publishes the binaries
	Manufacturer = "ListenBuddy"
)

// String returns "Product Version"
func String() string {
	return Product + " " + Version
}
