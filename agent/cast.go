package agent

import (
	"context"
	"math"
	"math/rand/v2"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"roundtable/models"
)

// PersonaSource produces a personality profile for a cast slot. index is the
// slot position, used by generators to rotate diversity directions.
type PersonaSource interface {
	GeneratePersonality(ctx context.Context, character models.Character, index int) (models.PersonalityProfile, error)
}

// Embedder turns text into a similarity vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type CastOptions struct {
	// Seed drives the initial agent-to-agent relationship values.
	Seed uint64
	// Concurrency bounds parallel generator and embedding calls. Zero means 4.
	Concurrency int
	Logger      *zap.Logger
}

// BuildCast generates personalities, embeds interests once, and seeds the
// relationship graph for characters. Generator failures fall back to the
// default profile; embedding failures leave a nil vector for that interest.
// Only context cancellation aborts the build.
func BuildCast(ctx context.Context, characters []models.Character, personas PersonaSource, embedder Embedder, opts CastOptions) (*Registry, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "cast"))
	limit := opts.Concurrency
	if limit <= 0 {
		limit = 4
	}

	profiles := make([]models.PersonalityProfile, len(characters))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, c := range characters {
		g.Go(func() error {
			profile := models.FallbackProfile(c.Topic)
			if personas != nil {
				p, err := personas.GeneratePersonality(gctx, c, i)
				switch {
				case err != nil:
					logger.Warn("personality generation failed, using fallback", zap.String("agent", c.Name), zap.Error(err))
				case !p.Complete():
					logger.Warn("personality profile incomplete, using fallback", zap.String("agent", c.Name))
				default:
					profile = p
				}
			}
			profiles[i] = profile
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	agents := make([]*Agent, len(characters))
	for i, c := range characters {
		p := ResolvePersonality(c, profiles[i])
		vectors, err := EmbedInterests(ctx, embedder, p.Interests, limit, logger)
		if err != nil {
			return nil, err
		}
		agents[i] = New(c.Name, p, vectors)
		logger.Info("agent created",
			zap.String("agent", c.Name),
			zap.String("traits", p.Traits),
			zap.Float64("introversion", p.Introversion),
			zap.Float64("assertiveness", p.Assertiveness),
			zap.Int("interests", len(p.Interests)))
	}

	reg, err := NewRegistry(agents...)
	if err != nil {
		return nil, err
	}
	SeedRelationships(reg, opts.Seed)
	return reg, nil
}

// ResolvePersonality fills every field of the profile with an explicit default
// when the generator left it empty.
func ResolvePersonality(c models.Character, p models.PersonalityProfile) Personality {
	orDefault := func(v, def string) string {
		if strings.TrimSpace(v) == "" {
			return def
		}
		return strings.TrimSpace(v)
	}
	interests := ParseInterests(p.InterestsHobbies)
	if len(interests) == 0 {
		interests = append([]string(nil), DefaultInterests...)
	}
	topic := orDefault(c.Topic, "friend")
	return Personality{
		Traits:        orDefault(p.Traits, "thoughtful, unique"),
		Backstory:     orDefault(p.Backstory, "Experience with "+topic),
		Interests:     interests,
		Attitude:      orDefault(p.Attitude, "Direct but thoughtful"),
		Tone:          orDefault(p.Tone, "authentic and direct"),
		Appearance:    orDefault(p.Appearance, "unique and distinctive"),
		Topic:         topic,
		Role:          orDefault(c.Description, topic),
		Introversion:  Clamp01(p.Introversion.Or(0.5)),
		Assertiveness: Clamp01(p.Assertiveness.Or(0.5)),
	}
}

// EmbedInterests embeds each interest exactly once. The result is index-aligned
// with interests.
func EmbedInterests(ctx context.Context, embedder Embedder, interests []string, limit int, logger *zap.Logger) ([][]float32, error) {
	vectors := make([][]float32, len(interests))
	if embedder == nil {
		return vectors, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, interest := range interests {
		g.Go(func() error {
			vec, err := embedder.Embed(gctx, interest)
			if err != nil {
				logger.Warn("interest embedding failed", zap.String("interest", interest), zap.Error(err))
				return gctx.Err()
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// SeedRelationships gives every agent a default relationship toward the user and
// a randomized one toward each other agent: bond in [0.3, 0.7], trust in [0.4, 0.8],
// rounded to two decimals. The same seed yields the same graph.
func SeedRelationships(reg *Registry, seed uint64) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for _, a := range reg.All() {
		a.Relationships[UserID] = NewRelationship()
		for _, other := range reg.All() {
			if other == a {
				continue
			}
			a.Relationships[other.Name] = &Relationship{
				Bond:  round2(0.3 + rng.Float64()*0.4),
				Trust: round2(0.4 + rng.Float64()*0.4),
			}
		}
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
