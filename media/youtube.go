package media

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/chatdeck/telemetry"
)

// DataAPIResolver resolves through the YouTube Data API v3 with an API key.
type DataAPIResolver struct {
	svc *yt.Service
}

// NewDataAPIResolver builds a resolver for apiKey. Extra options are appended
// (tests point the endpoint at a local server).
func NewDataAPIResolver(ctx context.Context, apiKey string, opts ...option.ClientOption) (*DataAPIResolver, error) {
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return &DataAPIResolver{svc: svc}, nil
}

// Resolve implements Resolver.
func (r *DataAPIResolver) Resolve(ctx context.Context, query string) (Descriptor, error) {
	ctx, span := telemetry.StartSpan(ctx, "media", "media.resolve.data_api")
	defer span.End()
	d, err := resolve(ctx, r, query)
	if err != nil {
		telemetry.RecordError(span, err)
		return d, err
	}
	telemetry.SetSpanSuccess(span)
	return d, nil
}

func (r *DataAPIResolver) byID(ctx context.Context, id string) (Descriptor, error) {
	resp, err := r.svc.Videos.List([]string{"snippet", "contentDetails"}).Id(id).Context(ctx).Do()
	if err != nil {
		return Descriptor{}, fmt.Errorf("youtube videos.list: %w", err)
	}
	if len(resp.Items) == 0 {
		return Descriptor{}, fmt.Errorf("%w: video %s", ErrNotFound, id)
	}
	v := resp.Items[0]
	d := Descriptor{ID: v.Id, URL: CanonicalURL(v.Id), Thumbnail: ThumbnailURL(v.Id)}
	if d.ID == "" {
		d.ID, d.URL, d.Thumbnail = id, CanonicalURL(id), ThumbnailURL(id)
	}
	if s := v.Snippet; s != nil {
		d.Title = s.Title
		d.Channel = s.ChannelTitle
		if t := bestThumbnail(s.Thumbnails); t != "" {
			d.Thumbnail = t
		}
	}
	if cd := v.ContentDetails; cd != nil {
		if secs, ok := ParseISODuration(cd.Duration); ok {
			d.Duration = FormatDuration(secs)
		}
	}
	return d, nil
}

func (r *DataAPIResolver) search(ctx context.Context, query string) (Descriptor, error) {
	resp, err := r.svc.Search.List([]string{"snippet"}).Q(query).Type("video").MaxResults(1).Context(ctx).Do()
	if err != nil {
		return Descriptor{}, fmt.Errorf("youtube search.list: %w", err)
	}
	for _, item := range resp.Items {
		if item.Id != nil && item.Id.VideoId != "" {
			// a second call fills in the duration search results lack
			return r.byID(ctx, item.Id.VideoId)
		}
	}
	return Descriptor{}, fmt.Errorf("%w: %q", ErrNotFound, query)
}

func bestThumbnail(t *yt.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	for _, th := range []*yt.Thumbnail{t.High, t.Medium, t.Default} {
		if th != nil && th.Url != "" {
			return th.Url
		}
	}
	return ""
}
