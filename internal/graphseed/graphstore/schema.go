package graphstore

import (
	"github.com/socialseed/graphseed/internal/common/seederrors"
)

type ColumnType int

const (
	Integer ColumnType = iota
	Text
	Boolean
	Timestamp
)

type Column struct {
	Name   string
	Type   ColumnType
	Unique bool
	// Derived columns are filled in by aggregates rather than imported, and default to zero/null.
	Derived bool
}

// Label is a node population stored as one table keyed by idn.
type Label struct {
	Name    string
	Table   string
	Columns []Column
}

// EdgeType is a relationship population stored as one table keyed by (origin, destination).
type EdgeType struct {
	Name        string
	Table       string
	Origin      string
	Destination string
	Properties  []Column
}

const (
	LabelSocialUser = "SocialUser"
	LabelPost       = "Post"
	LabelHashTag    = "HashTag"

	EdgeFriendOf     = "FRIEND_OF"
	EdgeFollowedBy   = "FOLLOWED_BY"
	EdgePostedBy     = "POSTED_BY"
	EdgeLikes        = "LIKES"
	EdgeInterestedIn = "INTERESTED_IN"
	EdgeTaggedWith   = "TAGGED_WITH"

	IdnColumn         = "idn"
	OriginColumn      = "origin"
	DestinationColumn = "destination"

	// TagMarker prefixes every hashtag name written into post content.
	TagMarker     = "#"
	contentColumn = "content"
	tagNameColumn = "name"
)

// The schema is a fixed allow-list: only these names ever reach a statement as identifiers.
var (
	labels = map[string]Label{
		LabelSocialUser: {
			Name:  LabelSocialUser,
			Table: "social_user",
			Columns: []Column{
				{Name: IdnColumn, Type: Integer},
				{Name: "identifier", Type: Text},
				{Name: "full_name", Type: Text},
				{Name: "user_name", Type: Text, Unique: true},
				{Name: "email", Type: Text, Unique: true},
				{Name: "date_born", Type: Timestamp},
				{Name: "registration_date", Type: Timestamp},
				{Name: "language", Type: Text},
				{Name: "on_vacation", Type: Boolean},
				{Name: "is_active", Type: Boolean},
				{Name: "friend_request_count", Type: Integer},
				{Name: "friend_count", Type: Integer, Derived: true},
				{Name: "following_count", Type: Integer, Derived: true},
				{Name: "followers_count", Type: Integer, Derived: true},
				{Name: "post_count", Type: Integer, Derived: true},
			},
		},
		LabelPost: {
			Name:  LabelPost,
			Table: "post",
			Columns: []Column{
				{Name: IdnColumn, Type: Integer},
				{Name: "identifier", Type: Text},
				{Name: "content", Type: Text},
				{Name: "update_date", Type: Timestamp},
				{Name: "image_url", Type: Text},
				{Name: "is_active", Type: Boolean},
				{Name: "like_count", Type: Integer, Derived: true},
			},
		},
		LabelHashTag: {
			Name:  LabelHashTag,
			Table: "hashtag",
			Columns: []Column{
				{Name: IdnColumn, Type: Integer},
				{Name: "identifier", Type: Text},
				{Name: "name", Type: Text, Unique: true},
				{Name: "created_date", Type: Timestamp},
				{Name: "post_tagged_in", Type: Integer, Derived: true},
			},
		},
	}

	edgeTypes = map[string]EdgeType{
		EdgeFriendOf: {
			Name: EdgeFriendOf, Table: "friend_of", Origin: LabelSocialUser, Destination: LabelSocialUser,
			Properties: []Column{{Name: "friendship_date", Type: Timestamp, Derived: true}},
		},
		EdgeFollowedBy: {
			Name: EdgeFollowedBy, Table: "followed_by", Origin: LabelSocialUser, Destination: LabelSocialUser,
			Properties: []Column{{Name: "follow_date", Type: Timestamp, Derived: true}},
		},
		EdgePostedBy: {
			Name: EdgePostedBy, Table: "posted_by", Origin: LabelPost, Destination: LabelSocialUser,
		},
		EdgeLikes: {
			Name: EdgeLikes, Table: "likes", Origin: LabelSocialUser, Destination: LabelPost,
			Properties: []Column{{Name: "like_date", Type: Timestamp, Derived: true}},
		},
		EdgeInterestedIn: {
			Name: EdgeInterestedIn, Table: "interested_in", Origin: LabelSocialUser, Destination: LabelHashTag,
			Properties: []Column{{Name: "interest_date", Type: Timestamp, Derived: true}},
		},
		EdgeTaggedWith: {
			Name: EdgeTaggedWith, Table: "tagged_with", Origin: LabelPost, Destination: LabelHashTag,
		},
	}

	labelOrder = []string{LabelSocialUser, LabelPost, LabelHashTag}
	edgeOrder  = []string{EdgeFriendOf, EdgeFollowedBy, EdgePostedBy, EdgeLikes, EdgeInterestedIn, EdgeTaggedWith}
)

// DegreeCount sets Property on every node of Label to the number of Edge rows touching it.
type DegreeCount struct {
	Label    string
	Property string
	Edge     string
	// Direction is one of Outgoing, Incoming or Either.
	Direction Direction
}

type Direction int

const (
	Outgoing Direction = iota
	Incoming
	Either
)

// Target selects what a TimestampDerivation writes to.
type Target int

const (
	// TargetEdge writes Property on the edge row.
	TargetEdge Target = iota
	// TargetOrigin writes Property on the origin node of the edge.
	TargetOrigin
)

// TimestampDerivation interpolates Property from the origin's OriginProperty and the destination's
// DestinationProperty for every row of Edge.
type TimestampDerivation struct {
	Edge                string
	OriginProperty      string
	DestinationProperty string
	Property            string
	Target              Target
}

var (
	DegreeCounts = []DegreeCount{
		{Label: LabelSocialUser, Property: "friend_count", Edge: EdgeFriendOf, Direction: Either},
		{Label: LabelSocialUser, Property: "following_count", Edge: EdgeFollowedBy, Direction: Outgoing},
		{Label: LabelSocialUser, Property: "followers_count", Edge: EdgeFollowedBy, Direction: Incoming},
		{Label: LabelSocialUser, Property: "post_count", Edge: EdgePostedBy, Direction: Incoming},
		{Label: LabelPost, Property: "like_count", Edge: EdgeLikes, Direction: Incoming},
		{Label: LabelHashTag, Property: "post_tagged_in", Edge: EdgeTaggedWith, Direction: Incoming},
	}

	// Post update dates are derived before like dates, which read them.
	TimestampDerivations = []TimestampDerivation{
		{Edge: EdgeFriendOf, OriginProperty: "registration_date", DestinationProperty: "registration_date", Property: "friendship_date"},
		{Edge: EdgeFollowedBy, OriginProperty: "registration_date", DestinationProperty: "registration_date", Property: "follow_date"},
		{Edge: EdgePostedBy, OriginProperty: "update_date", DestinationProperty: "registration_date", Property: "update_date", Target: TargetOrigin},
		{Edge: EdgeLikes, OriginProperty: "registration_date", DestinationProperty: "update_date", Property: "like_date"},
		{Edge: EdgeInterestedIn, OriginProperty: "registration_date", DestinationProperty: "created_date", Property: "interest_date"},
	}
)

func LookupLabel(name string) (Label, error) {
	l, ok := labels[name]
	if !ok {
		return Label{}, &seederrors.ErrInvalidArgument{Name: "label", Value: name, Message: "not in schema"}
	}
	return l, nil
}

func LookupEdgeType(name string) (EdgeType, error) {
	e, ok := edgeTypes[name]
	if !ok {
		return EdgeType{}, &seederrors.ErrInvalidArgument{Name: "edge type", Value: name, Message: "not in schema"}
	}
	return e, nil
}

func (l Label) Column(name string) (Column, bool) {
	for _, c := range l.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Columns of an edge table, endpoints first.
func (e EdgeType) Columns() []Column {
	cols := []Column{{Name: OriginColumn, Type: Integer}, {Name: DestinationColumn, Type: Integer}}
	return append(cols, e.Properties...)
}

func (e EdgeType) Column(name string) (Column, bool) {
	for _, c := range e.Columns() {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}
