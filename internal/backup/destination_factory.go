package backup

import (
	"context"
	"fmt"
)

// DestinationFactory creates destination handlers from configuration
type DestinationFactory struct{}

// NewDestinationFactory creates a new destination factory
func NewDestinationFactory() *DestinationFactory {
	return &DestinationFactory{}
}

// CreateDestinationHandler builds the handler for one configured
// destination. The destination's Path is the local sub-directory for local
// destinations and the object prefix for cloud destinations.
func (df *DestinationFactory) CreateDestinationHandler(ctx context.Context, dest *BackupDestination) (DestinationHandler, error) {
	if dest == nil {
		return nil, NewValidationError("destination configuration is required", nil)
	}

	switch dest.Type {
	case DestinationTypeLocal:
		if dest.Local == nil && dest.Path != "" {
			// Shorthand form with only a path: use it as the base directory
			return NewLocalDestination(&LocalDestinationConfig{BasePath: dest.Path}, "")
		}
		return NewLocalDestination(dest.Local, dest.Path)

	case DestinationTypeS3:
		return NewS3Destination(dest.S3, dest.Path)

	case DestinationTypeAzure:
		return NewAzureDestination(dest.Azure, dest.Path)

	case DestinationTypeGCS:
		return NewGCSDestination(ctx, dest.GCS, dest.Path)

	default:
		return nil, NewValidationError(fmt.Sprintf("unsupported destination type: %s", dest.Type), nil)
	}
}

// GetSupportedTypes returns the destination types the factory can build
func (df *DestinationFactory) GetSupportedTypes() []DestinationType {
	return []DestinationType{
		DestinationTypeLocal,
		DestinationTypeS3,
		DestinationTypeAzure,
		DestinationTypeGCS,
	}
}
