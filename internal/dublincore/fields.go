package dublincore

import "github.com/MikeSquared-Agency/postarchive/internal/metadata"

// Metadata keys understood for the event catalog.
const (
	KeyMeetingName  = "meetingname"
	KeyTitle        = "opencast-dc-title"
	KeyIdentifier   = "opencast-dc-identifier"
	KeyCreator      = "opencast-dc-creator"
	KeyIsPartOf     = "opencast-dc-ispartof"
	KeyContributor  = "opencast-dc-contributor"
	KeySubject      = "opencast-dc-subject"
	KeyLanguage     = "opencast-dc-language"
	KeyDescription  = "opencast-dc-description"
	KeySpatial      = "opencast-dc-spatial"
	KeyCreated      = "opencast-dc-created"
	KeyRightsHolder = "opencast-dc-rightsholder"
	KeyLicense      = "opencast-dc-license"
	KeyPublisher    = "opencast-dc-publisher"
	KeyTemporal     = "opencast-dc-temporal"
	KeySource       = "opencast-dc-source"
	DefaultSpatial  = "BigBlueButton"
	seriesKeyPrefix = "opencast-series-dc-"
)

// EventOptions carries the computed state event fallbacks depend on.
type EventOptions struct {
	// RecordingStart and RecordingEnd are absolute epoch milliseconds of
	// the first recorded start and the last recorded stop.
	RecordingStart int64
	RecordingEnd   int64

	// Notes returns the shared notes text used as description fallback.
	// Nil disables the fallback.
	Notes func() string

	// PassIdentifierAsSource mirrors the requested identifier into
	// dcterms:source, even when the identifier itself is rejected later.
	PassIdentifierAsSource bool
}

// EventFields returns the field definitions of the event catalog.
func EventFields(bag metadata.Bag, opts EventOptions) []Field {
	return []Field{
		{Term: "title", Key: KeyTitle, Fallback: value(bag.Get(KeyMeetingName))},
		{Term: "identifier", Key: KeyIdentifier},
		{Term: "creator", Key: KeyCreator},
		{Term: "isPartOf", Key: KeyIsPartOf},
		{Term: "contributor", Key: KeyContributor},
		{Term: "subject", Key: KeySubject},
		{Term: "language", Key: KeyLanguage},
		{Term: "description", Key: KeyDescription, Fallback: opts.Notes},
		{Term: "spatial", Key: KeySpatial, Fallback: value(DefaultSpatial)},
		{Term: "created", Key: KeyCreated, Fallback: func() string {
			return Created(opts.RecordingStart)
		}},
		{Term: "rightsHolder", Key: KeyRightsHolder},
		{Term: "license", Key: KeyLicense},
		{Term: "publisher", Key: KeyPublisher},
		{Term: "temporal", Key: KeyTemporal, Fallback: func() string {
			return Temporal(opts.RecordingStart, opts.RecordingEnd)
		}},
		{Term: "source", Key: KeySource, Fallback: func() string {
			if !opts.PassIdentifierAsSource {
				return ""
			}
			return bag.Get(KeyIdentifier)
		}},
	}
}

// SeriesFields returns the field definitions of the series catalog. The
// series identifier is the event's isPartOf value.
func SeriesFields(bag metadata.Bag) []Field {
	return []Field{
		{Term: "title", Key: seriesKeyPrefix + "title", Fallback: value(bag.Get(KeyMeetingName))},
		{Term: "identifier", Key: KeyIsPartOf},
		{Term: "creator", Key: seriesKeyPrefix + "creator"},
		{Term: "contributor", Key: seriesKeyPrefix + "contributor"},
		{Term: "subject", Key: seriesKeyPrefix + "subject"},
		{Term: "language", Key: seriesKeyPrefix + "language"},
		{Term: "description", Key: seriesKeyPrefix + "description"},
		{Term: "rightsHolder", Key: seriesKeyPrefix + "rightsholder"},
		{Term: "license", Key: seriesKeyPrefix + "license"},
		{Term: "publisher", Key: seriesKeyPrefix + "publisher"},
	}
}

func value(s string) func() string {
	return func() string { return s }
}
