// Package media stores message attachments: their rows in the database and
// the uploaded files behind their URLs.
package media

import "strings"

type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
	KindFile  Kind = "file"
)

// ParseKind accepts the singular kind names used in upload URLs.
func ParseKind(s string) (Kind, bool) {
	switch k := Kind(strings.ToLower(s)); k {
	case KindImage, KindVideo, KindAudio, KindFile:
		return k, true
	}
	return "", false
}

// accepts reports whether a sniffed MIME type is allowed for the kind.
// Plain files take anything.
func (k Kind) accepts(mime string) bool {
	switch k {
	case KindImage:
		return strings.HasPrefix(mime, "image/")
	case KindVideo:
		return strings.HasPrefix(mime, "video/")
	case KindAudio:
		return strings.HasPrefix(mime, "audio/")
	}
	return true
}

// folder is the subdirectory files of this kind are written to.
func (k Kind) folder() string { return string(k) + "s" }

// Owner names the message table an attachment belongs to.
type Owner string

const (
	OwnerChat    Owner = "chat"
	OwnerGroup   Owner = "group"
	OwnerChannel Owner = "channel"
)

type Attachment struct {
	ID   int64  `json:"id"`
	Kind Kind   `json:"kind"`
	URL  string `json:"url"`
}

// Set is how clients send attachments: URLs returned by the upload
// endpoint, grouped by kind.
type Set struct {
	Images []string `json:"images,omitempty" validate:"max=10,dive,required,max=2048"`
	Videos []string `json:"videos,omitempty" validate:"max=10,dive,required,max=2048"`
	Audios []string `json:"audios,omitempty" validate:"max=10,dive,required,max=2048"`
	Files  []string `json:"files,omitempty" validate:"max=10,dive,required,max=2048"`
}

func (s Set) Empty() bool {
	return len(s.Images)+len(s.Videos)+len(s.Audios)+len(s.Files) == 0
}

// Attachments flattens the set, images first.
func (s Set) Attachments() []Attachment {
	out := make([]Attachment, 0, len(s.Images)+len(s.Videos)+len(s.Audios)+len(s.Files))
	add := func(kind Kind, urls []string) {
		for _, u := range urls {
			out = append(out, Attachment{Kind: kind, URL: u})
		}
	}
	add(KindImage, s.Images)
	add(KindVideo, s.Videos)
	add(KindAudio, s.Audios)
	add(KindFile, s.Files)
	return out
}

// URLs returns the URL of every attachment.
func URLs(atts []Attachment) []string {
	urls := make([]string, len(atts))
	for i, a := range atts {
		urls[i] = a.URL
	}
	return urls
}

// Orphaned returns the URLs in before that no longer appear in after.
func Orphaned(before, after []Attachment) []string {
	kept := make(map[string]struct{}, len(after))
	for _, a := range after {
		kept[a.URL] = struct{}{}
	}
	var out []string
	for _, a := range before {
		if _, ok := kept[a.URL]; !ok {
			out = append(out, a.URL)
		}
	}
	return out
}

// Added returns the URLs in after that were not in before.
func Added(before, after []Attachment) []string {
	return Orphaned(after, before)
}
