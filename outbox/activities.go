// Package outbox constructs the activities local actors emit and records
// them in their outbox.
package outbox

import (
	"bytes"
	"strings"
	"time"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/google/uuid"
	"github.com/questline/fedi/models"
)

const (
	Context = "https://www.w3.org/ns/activitystreams"
	Public  = "https://www.w3.org/ns/activitystreams#Public"

	CREATE = "Create"
	FOLLOW = "Follow"
	ACCEPT = "Accept"
	LIKE   = "Like"
	UNDO   = "Undo"
)

// Builder builds activities for the local actors of one domain.
type Builder struct {
	domain string
	now    func() time.Time
}

func New(domain string) *Builder {
	return &Builder{
		domain: domain,
		now:    time.Now,
	}
}

func (b *Builder) activityID(actor *models.LocalActor) string {
	return actor.ActivityPubID + "/activities/" + uuid.New().String()
}

func (b *Builder) objectID(actor *models.LocalActor) string {
	return actor.ActivityPubID + "/objects/" + uuid.New().String()
}

func (b *Builder) published() string {
	return b.now().UTC().Format(time.RFC3339)
}

// SubmissionIRI returns the IRI of a submission on this server.
func (b *Builder) SubmissionIRI(sub *models.Submission) string {
	return "https://" + b.domain + "/submissions/" + sub.ID.String()
}

// BuildCreateFromSubmission wraps sub in a Create addressed to the public
// and actor's followers, and appends it to actor's outbox.
func (b *Builder) BuildCreateFromSubmission(uow models.UnitOfWork, sub *models.Submission, actor *models.LocalActor, quest *models.Quest) (map[string]any, error) {
	typ, url, mediaType := "Image", sub.MediaURL, sub.MediaType
	if sub.VideoURL != "" {
		typ, url = "Video", sub.VideoURL
		if !strings.HasPrefix(mediaType, "video/") {
			mediaType = "video/mp4"
		}
	}
	now := b.now()
	published := now.UTC().Format(time.RFC3339)
	to := []any{Public, actor.FollowersURI()}
	object := map[string]any{
		"id":           b.SubmissionIRI(sub),
		"type":         typ,
		"attributedTo": actor.ActivityPubID,
		"content":      renderMarkdown(sub.Description),
		"mediaType":    mediaType,
		"url":          url,
		"published":    published,
		"to":           to,
	}
	if quest != nil {
		object["name"] = quest.Title
	}
	create := map[string]any{
		"@context":  Context,
		"id":        b.activityID(actor),
		"type":      CREATE,
		"actor":     actor.ActivityPubID,
		"published": published,
		"to":        to,
		"object":    object,
	}
	if _, err := uow.Outbox().Append(actor, create, now); err != nil {
		return nil, err
	}
	return create, nil
}

// BuildLikeFromSubmission likes sub on behalf of actor. ownerIRI is the
// IRI of the submission's owner.
func (b *Builder) BuildLikeFromSubmission(actor *models.LocalActor, sub *models.Submission, ownerIRI string) map[string]any {
	return map[string]any{
		"@context":  Context,
		"id":        b.activityID(actor),
		"type":      LIKE,
		"actor":     actor.ActivityPubID,
		"object":    b.SubmissionIRI(sub),
		"published": b.published(),
		"to":        []any{ownerIRI},
	}
}

// BuildReplyFromSubmission replies to sub with text, rendered from markdown.
func (b *Builder) BuildReplyFromSubmission(actor *models.LocalActor, sub *models.Submission, ownerIRI, text string) map[string]any {
	published := b.published()
	to := []any{ownerIRI}
	return map[string]any{
		"@context":  Context,
		"id":        b.activityID(actor),
		"type":      CREATE,
		"actor":     actor.ActivityPubID,
		"published": published,
		"to":        to,
		"object": map[string]any{
			"id":           b.objectID(actor),
			"type":         "Note",
			"attributedTo": actor.ActivityPubID,
			"inReplyTo":    b.SubmissionIRI(sub),
			"content":      renderMarkdown(text),
			"published":    published,
			"to":           to,
		},
	}
}

func (b *Builder) BuildFollow(actor *models.LocalActor, target string) map[string]any {
	return map[string]any{
		"@context": Context,
		"id":       b.activityID(actor),
		"type":     FOLLOW,
		"actor":    actor.ActivityPubID,
		"object":   target,
		"to":       []any{target},
	}
}

// BuildUndo undoes activity, which must have been emitted by actor. The
// Undo is addressed to the same audience.
func (b *Builder) BuildUndo(actor *models.LocalActor, activity map[string]any) map[string]any {
	undo := map[string]any{
		"@context": Context,
		"id":       b.activityID(actor),
		"type":     UNDO,
		"actor":    actor.ActivityPubID,
		"object":   withoutContext(activity),
	}
	for _, k := range []string{"to", "cc"} {
		if v, ok := activity[k]; ok {
			undo[k] = v
		}
	}
	return undo
}

// BuildAccept accepts follow on behalf of actor.
func (b *Builder) BuildAccept(actor *models.LocalActor, follow map[string]any) map[string]any {
	accept := map[string]any{
		"@context": Context,
		"id":       b.activityID(actor),
		"type":     ACCEPT,
		"actor":    actor.ActivityPubID,
		"object":   withoutContext(follow),
	}
	if follower, ok := follow["actor"].(string); ok {
		accept["to"] = []any{follower}
	}
	return accept
}

func withoutContext(activity map[string]any) map[string]any {
	m := make(map[string]any, len(activity))
	for k, v := range activity {
		if k != "@context" {
			m[k] = v
		}
	}
	return m
}

// renderMarkdown converts markdown source to an HTML fragment.
func renderMarkdown(src string) string {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.NoEmptyLineBeforeBlock)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.SkipHTML})
	return string(bytes.TrimSpace(markdown.ToHTML([]byte(src), p, renderer)))
}
