// Package synth produces the field values of generated nodes.
package synth

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"

	"github.com/socialseed/graphseed/internal/common/util"
	"github.com/socialseed/graphseed/internal/graphseed/graphstore"
	"github.com/socialseed/graphseed/internal/graphseed/registry"
)

const (
	UserNameKey = "userName"
	HashtagKey  = "hashtag"

	Language     = "ES"
	ImageURLBase = "https://socialseed.com/sdn/images/"

	userNamePrefixLength = 6
	minAge               = 16
	// Users registered within this window of now would have too little history to derive dates from.
	recentRegistrationWindow = 736 * 24 * time.Hour
)

var (
	EmailProviders = []string{"gmail.com", "yahoo.com", "hotmail.com", "outlook.com"}

	bornFrom = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	bornTo   = time.Date(2003, 12, 31, 0, 0, 0, 0, time.UTC)

	postsFrom = time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)
	postsTo   = time.Date(2021, 12, 31, 0, 0, 0, 0, time.UTC)

	hashtagsFrom = time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)
)

// Synthesizer is not safe for concurrent use; each generation task owns one.
type Synthesizer struct {
	faker *gofakeit.Faker
	clock util.Clock
}

func New(seed int64, clock util.Clock) *Synthesizer {
	return &Synthesizer{faker: gofakeit.New(seed), clock: clock}
}

type User struct {
	Idn                int64
	Identifier         string
	FullName           string
	UserName           string
	Email              string
	DateBorn           time.Time
	RegistrationDate   time.Time
	Language           string
	OnVacation         bool
	IsActive           bool
	FriendRequestCount int
}

var UserHeader = []string{
	"idn", "identifier", "full_name", "user_name", "email", "date_born", "registration_date",
	"language", "on_vacation", "is_active", "friend_request_count",
}

func (u User) Record() []string {
	return []string{
		strconv.FormatInt(u.Idn, 10),
		u.Identifier,
		u.FullName,
		u.UserName,
		u.Email,
		graphstore.FormatTime(u.DateBorn),
		graphstore.FormatTime(u.RegistrationDate),
		u.Language,
		strconv.FormatBool(u.OnVacation),
		strconv.FormatBool(u.IsActive),
		strconv.Itoa(u.FriendRequestCount),
	}
}

type Post struct {
	Idn        int64
	Identifier string
	Content    string
	UpdateDate time.Time
	ImageURL   string
	IsActive   bool
}

var PostHeader = []string{"idn", "identifier", "content", "update_date", "image_url", "is_active"}

func (p Post) Record() []string {
	return []string{
		strconv.FormatInt(p.Idn, 10),
		p.Identifier,
		p.Content,
		graphstore.FormatTime(p.UpdateDate),
		p.ImageURL,
		strconv.FormatBool(p.IsActive),
	}
}

type HashTag struct {
	Idn         int64
	Identifier  string
	Name        string
	CreatedDate time.Time
}

var HashTagHeader = []string{"idn", "identifier", "name", "created_date"}

func (h HashTag) Record() []string {
	return []string{
		strconv.FormatInt(h.Idn, 10),
		h.Identifier,
		h.Name,
		graphstore.FormatTime(h.CreatedDate),
	}
}

// UserName derives a handle from the first word characters of a lowercased name plus a numeric suffix.
func UserName(fullName string, suffix int) string {
	var b strings.Builder
	n := 0
	for _, r := range strings.ToLower(fullName) {
		if n == userNamePrefixLength {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
			n++
		}
	}
	return fmt.Sprintf("%s%d", b.String(), suffix)
}

// User synthesizes user idn, reserving its user name against names so it is unique across tasks.
func (s *Synthesizer) User(ctx context.Context, idn int64, names registry.ValueReserver) (User, error) {
	var fullName string
	userName, err := names.Reserve(ctx, UserNameKey, func() string {
		fullName = s.faker.Name()
		return UserName(fullName, s.faker.Number(1000, 9999))
	})
	if err != nil {
		return User{}, err
	}
	born := s.dateBetween(bornFrom, bornTo)
	return User{
		Idn:                idn,
		Identifier:         s.identifier(),
		FullName:           fullName,
		UserName:           userName,
		Email:              userName + "@" + EmailProviders[s.faker.Number(0, len(EmailProviders)-1)],
		DateBorn:           born,
		RegistrationDate:   s.dateBetween(born.AddDate(minAge, 0, 0), s.clock.Now().Add(-recentRegistrationWindow)),
		Language:           Language,
		OnVacation:         s.faker.Bool(),
		IsActive:           s.faker.Bool(),
		FriendRequestCount: 0,
	}, nil
}

// Post synthesizes post idn with between minWords and maxWords words of content.
func (s *Synthesizer) Post(idn int64, minWords, maxWords int) Post {
	words := s.faker.Number(minWords, maxWords)
	content := make([]string, words)
	for i := range content {
		content[i] = strings.ToLower(s.faker.Word())
	}
	return Post{
		Idn:        idn,
		Identifier: s.identifier(),
		Content:    strings.Join(content, " "),
		UpdateDate: s.dateBetween(postsFrom, postsTo),
		ImageURL:   ImageURLBase + strings.ToLower(s.faker.Word()) + ".jpg",
		IsActive:   s.faker.Bool(),
	}
}

// HashTag synthesizes hashtag idn, reserving its name against names so it is unique across tasks.
func (s *Synthesizer) HashTag(ctx context.Context, idn int64, names registry.ValueReserver) (HashTag, error) {
	name, err := names.Reserve(ctx, HashtagKey, func() string {
		return strings.ToLower(s.faker.Adjective() + s.faker.Noun())
	})
	if err != nil {
		return HashTag{}, err
	}
	return HashTag{
		Idn:         idn,
		Identifier:  s.identifier(),
		Name:        name,
		CreatedDate: s.dateBetween(hashtagsFrom, s.clock.Now()),
	}, nil
}

func (s *Synthesizer) identifier() string {
	id, err := uuid.NewRandomFromReader(s.faker.Rand)
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// dateBetween returns a second-resolution time in [from, to], or from if the window is empty.
func (s *Synthesizer) dateBetween(from, to time.Time) time.Time {
	if !to.After(from) {
		return from.UTC().Truncate(time.Second)
	}
	return s.faker.DateRange(from, to).UTC().Truncate(time.Second)
}
