package seeder

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/socialseed/graphseed/internal/common/seedcontext"
	"github.com/socialseed/graphseed/internal/graphseed/configuration"
	"github.com/socialseed/graphseed/internal/graphseed/generate"
	"github.com/socialseed/graphseed/internal/graphseed/graphstore"
	"github.com/socialseed/graphseed/internal/graphseed/partition"
	"github.com/socialseed/graphseed/internal/graphseed/relationship"
	"github.com/socialseed/graphseed/internal/graphseed/synth"
)

const (
	PhaseUsers    = "users"
	PhasePosts    = "posts"
	PhaseHashtags = "hashtags"
)

// Phase generates one node or relationship population and names where its artifacts are loaded.
type Phase struct {
	Name     string
	Mapping  graphstore.Mapping
	generate func(ctx *seedcontext.Context) (*generate.Report, error)
}

// Phases lists every population in load order. Nodes come before the relationships that reference them.
func (r *Runner) Phases() []Phase {
	c := r.config
	users, posts, hashtags := c.Users.Total, c.Posts.Total(c.Users.Total), c.Hashtags.Total
	edge := func(spec relationship.Spec) Phase {
		return Phase{
			Name:    strings.ToLower(spec.Name),
			Mapping: graphstore.EdgeMapping(spec.Name),
			generate: func(ctx *seedcontext.Context) (*generate.Report, error) {
				return r.relationships.ManyToMany(ctx, spec)
			},
		}
	}
	manyToMany := func(name string, origins, destinations int64, cardinality configuration.Cardinality, unique bool) Phase {
		return edge(relationship.Spec{
			Name:         name,
			Origins:      origins,
			Destinations: destinations,
			Min:          cardinality.Min,
			Max:          cardinality.Max,
			Unique:       unique,
		})
	}
	return []Phase{
		{Name: PhaseUsers, Mapping: graphstore.NodeMapping(graphstore.LabelSocialUser), generate: r.generateUsers},
		{Name: PhasePosts, Mapping: graphstore.NodeMapping(graphstore.LabelPost), generate: r.generatePosts},
		{Name: PhaseHashtags, Mapping: graphstore.NodeMapping(graphstore.LabelHashTag), generate: r.generateHashtags},
		manyToMany(graphstore.EdgeFriendOf, users, users, c.Users.Friends, true),
		manyToMany(graphstore.EdgeFollowedBy, users, users, c.Users.Follows, true),
		{
			Name:    strings.ToLower(graphstore.EdgePostedBy),
			Mapping: graphstore.EdgeMapping(graphstore.EdgePostedBy),
			generate: func(ctx *seedcontext.Context) (*generate.Report, error) {
				return r.relationships.ManyToOne(ctx, relationship.Spec{Name: graphstore.EdgePostedBy, Origins: posts, Destinations: users})
			},
		},
		manyToMany(graphstore.EdgeLikes, users, posts, c.Users.Likes, false),
		manyToMany(graphstore.EdgeInterestedIn, users, hashtags, c.Users.Interests, true),
		manyToMany(graphstore.EdgeTaggedWith, posts, hashtags, c.Posts.Hashtags, true),
	}
}

// LookupPhase finds a phase by name, ignoring case.
func (r *Runner) LookupPhase(name string) (Phase, bool) {
	for _, p := range r.Phases() {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Phase{}, false
}

func (r *Runner) generateUsers(ctx *seedcontext.Context) (*generate.Report, error) {
	names, err := r.registries.forPhase(synth.UserNameKey)
	if err != nil {
		return nil, err
	}
	return r.pool.Run(ctx, r.config.Users.Total, PhaseUsers, func(ctx *seedcontext.Context, rng partition.Range, index int) (string, error) {
		s := synth.New(generate.TaskSeed(r.seed, PhaseUsers, index), r.clock)
		rows := make([][]string, 0, rng.Len())
		for idn := rng.Start; idn <= rng.End; idn++ {
			u, err := s.User(ctx, idn, names)
			if err != nil {
				return "", errors.WithMessagef(err, "user %d", idn)
			}
			rows = append(rows, u.Record())
		}
		return r.writeArtifact(PhaseUsers, index, synth.UserHeader, rows)
	})
}

func (r *Runner) generatePosts(ctx *seedcontext.Context) (*generate.Report, error) {
	words := r.config.Posts.Words
	total := r.config.Posts.Total(r.config.Users.Total)
	return r.pool.Run(ctx, total, PhasePosts, func(ctx *seedcontext.Context, rng partition.Range, index int) (string, error) {
		s := synth.New(generate.TaskSeed(r.seed, PhasePosts, index), r.clock)
		rows := make([][]string, 0, rng.Len())
		for idn := rng.Start; idn <= rng.End; idn++ {
			rows = append(rows, s.Post(idn, words.Min, words.Max).Record())
		}
		return r.writeArtifact(PhasePosts, index, synth.PostHeader, rows)
	})
}

func (r *Runner) generateHashtags(ctx *seedcontext.Context) (*generate.Report, error) {
	names, err := r.registries.forPhase(synth.HashtagKey)
	if err != nil {
		return nil, err
	}
	return r.pool.Run(ctx, r.config.Hashtags.Total, PhaseHashtags, func(ctx *seedcontext.Context, rng partition.Range, index int) (string, error) {
		s := synth.New(generate.TaskSeed(r.seed, PhaseHashtags, index), r.clock)
		rows := make([][]string, 0, rng.Len())
		for idn := rng.Start; idn <= rng.End; idn++ {
			h, err := s.HashTag(ctx, idn, names)
			if err != nil {
				return "", errors.WithMessagef(err, "hashtag %d", idn)
			}
			rows = append(rows, h.Record())
		}
		return r.writeArtifact(PhaseHashtags, index, synth.HashTagHeader, rows)
	})
}

func (r *Runner) writeArtifact(phase string, index int, header []string, rows [][]string) (string, error) {
	ref := r.artifacts.Ref(phase, index)
	if err := r.artifacts.Write(ref, header, rows); err != nil {
		return "", err
	}
	return ref, nil
}
