package content

import (
	"encoding/json"
	"fmt"
)

// Payload is the kind-specific body of a Record. It is a sealed tagged union:
// exactly one implementation exists per Kind and decoding happens once, at the
// store-gateway boundary, so nothing downstream branches on untyped shapes.
type Payload interface {
	PayloadKind() Kind
}

// SubjectPage is the payload for subject landing pages.
type SubjectPage struct {
	Title       string `json:"title"`
	Heading     string `json:"heading,omitempty"`
	Description string `json:"description,omitempty"`
}

// CurriculumPage is the payload for curriculum pages.
type CurriculumPage struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Level       string `json:"level,omitempty"`
}

// HeroSection is the payload for homepage hero blocks.
type HeroSection struct {
	Heading    string `json:"heading"`
	Subheading string `json:"subheading,omitempty"`
	ImageURL   string `json:"imageUrl,omitempty"`
}

// FAQSet is the payload for FAQ groups.
type FAQSet struct {
	Title string `json:"title,omitempty"`
	Items []FAQ  `json:"items,omitempty"`
}

// FAQ is a single question/answer pair.
type FAQ struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// AdvertBlock is the payload for promotional blocks.
type AdvertBlock struct {
	Heading string `json:"heading,omitempty"`
	Body    string `json:"body,omitempty"`
	CTALink string `json:"ctaLink,omitempty"`
}

// Testimonial is the payload for customer testimonials.
type Testimonial struct {
	Author string `json:"author"`
	Quote  string `json:"quote"`
	Rating int    `json:"rating,omitempty"`
}

// FooterSection is the payload for site footer content.
type FooterSection struct {
	Heading string `json:"heading,omitempty"`
	Body    string `json:"body,omitempty"`
}

// TutorProfile is the payload for tutor records. SubjectLink is the stored
// internal link to the tutor's subject page and is the target of the
// dependent-record repair pass when a subject slug changes.
type TutorProfile struct {
	Name        string `json:"name"`
	SubjectID   string `json:"subjectId,omitempty"`
	SubjectLink string `json:"subjectLink,omitempty"`
}

func (SubjectPage) PayloadKind() Kind    { return KindSubject }
func (CurriculumPage) PayloadKind() Kind { return KindCurriculum }
func (HeroSection) PayloadKind() Kind    { return KindHero }
func (FAQSet) PayloadKind() Kind         { return KindFAQ }
func (AdvertBlock) PayloadKind() Kind    { return KindAdvert }
func (Testimonial) PayloadKind() Kind    { return KindTestimonial }
func (FooterSection) PayloadKind() Kind  { return KindFooter }
func (TutorProfile) PayloadKind() Kind   { return KindTutor }

// envelope is the common wrapper every store document carries.
type envelope struct {
	ID     string `json:"_id"`
	Type   Kind   `json:"_type"`
	Active bool   `json:"isActive"`
	Slug   struct {
		Current string `json:"current"`
	} `json:"slug"`
	Clone struct {
		Ref string `json:"_ref"`
	} `json:"clone"`
}

// DecodeRecord decodes a raw store document into a typed Record. The payload
// variant is chosen by the document's _type tag.
func DecodeRecord(raw json.RawMessage) (*Record, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if !env.Type.Valid() {
		return nil, fmt.Errorf("unknown document kind %q", env.Type)
	}

	payload, err := decodePayload(env.Type, raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}

	return &Record{
		ID:      env.ID,
		Kind:    env.Type,
		Slug:    env.Slug.Current,
		CloneID: env.Clone.Ref,
		Active:  env.Active,
		Payload: payload,
	}, nil
}

func decodePayload(kind Kind, raw json.RawMessage) (Payload, error) {
	unmarshal := func(v Payload) (Payload, error) {
		if err := json.Unmarshal(raw, v); err != nil {
			return nil, err
		}
		return v, nil
	}

	switch kind {
	case KindSubject:
		return unmarshal(&SubjectPage{})
	case KindCurriculum:
		return unmarshal(&CurriculumPage{})
	case KindHero:
		return unmarshal(&HeroSection{})
	case KindFAQ:
		return unmarshal(&FAQSet{})
	case KindAdvert:
		return unmarshal(&AdvertBlock{})
	case KindTestimonial:
		return unmarshal(&Testimonial{})
	case KindFooter:
		return unmarshal(&FooterSection{})
	case KindTutor:
		return unmarshal(&TutorProfile{})
	default:
		return nil, fmt.Errorf("no payload schema for kind %q", kind)
	}
}
