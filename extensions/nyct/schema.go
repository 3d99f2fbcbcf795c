package nyct

import (
	"sync"

	"github.com/jamespfennell/gtfsrt/schema"
)

// ExtensionNumber is the field number NYCT registered for its extensions of FeedHeader,
// TripDescriptor and StopTimeUpdate.
const ExtensionNumber int32 = 1001

// Message and enum names in the NYCT registry.
const (
	FeedHeaderMessage            = "NyctFeedHeader"
	TripReplacementPeriodMessage = "TripReplacementPeriod"
	TripDescriptorMessage        = "NyctTripDescriptor"
	StopTimeUpdateMessage        = "NyctStopTimeUpdate"
	DirectionEnum                = "NyctTripDescriptor.Direction"
)

var (
	registryOnce sync.Once
	registry     *schema.Registry
)

// Registry returns the descriptors of the NYCT subway extension messages.
func Registry() *schema.Registry {
	registryOnce.Do(func() {
		r := schema.NewRegistry()
		r.AddEnum(&schema.Enum{
			Name: DirectionEnum,
			Values: []schema.EnumValue{
				{Name: "NORTH", Number: 1},
				{Name: "EAST", Number: 2},
				{Name: "SOUTH", Number: 3},
				{Name: "WEST", Number: 4},
			},
			Default: 1,
		})
		r.AddMessage(&schema.Message{
			Name: TripReplacementPeriodMessage,
			Fields: []*schema.Field{
				{Number: 1, Name: "route_id", Kind: schema.StringKind},
				{Number: 2, Name: "replacement_period", Kind: schema.MessageKind, TypeName: schema.TimeRange},
			},
		})
		r.AddMessage(&schema.Message{
			Name: FeedHeaderMessage,
			Fields: []*schema.Field{
				{Number: 1, Name: "nyct_subway_version", Cardinality: schema.Required, Kind: schema.StringKind},
				{Number: 2, Name: "trip_replacement_period", Cardinality: schema.Repeated, Kind: schema.MessageKind, TypeName: TripReplacementPeriodMessage},
			},
		})
		r.AddMessage(&schema.Message{
			Name: TripDescriptorMessage,
			Fields: []*schema.Field{
				{Number: 1, Name: "train_id", Kind: schema.StringKind},
				{Number: 2, Name: "is_assigned", Kind: schema.BoolKind},
				{Number: 3, Name: "direction", Kind: schema.EnumKind, TypeName: DirectionEnum},
			},
		})
		r.AddMessage(&schema.Message{
			Name: StopTimeUpdateMessage,
			Fields: []*schema.Field{
				{Number: 1, Name: "scheduled_track", Kind: schema.StringKind},
				{Number: 2, Name: "actual_track", Kind: schema.StringKind},
			},
		})
		// The replacement period reuses the base TimeRange message.
		r.AddMessage(&schema.Message{
			Name: schema.TimeRange,
			Fields: []*schema.Field{
				{Number: 1, Name: "start", Kind: schema.Uint64Kind},
				{Number: 2, Name: "end", Kind: schema.Uint64Kind},
			},
			ExtensionRanges: schema.ExtensionRanges,
		})
		registry = r
	})
	return registry
}
