package normalize

import (
	"path"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/samber/lo"
	"golang.org/x/text/language"

	"streamscout/internal/media"
)

// captionKeys are the collection names looked up on every root object.
var captionKeys = []string{"captions", "subtitles", "tracks"}

// rawCaption is an entry before canonicalization.
type rawCaption struct {
	id, url, language, label, format string
}

// collectCaptions gathers caption entries from every root in order and
// flattens them into one list. Duplicates are removed by Captions.
func collectCaptions(objs [][]byte) []media.Caption {
	var found []rawCaption
	for _, obj := range objs {
		for _, key := range captionKeys {
			v, typ, _, err := jsonparser.Get(obj, key)
			if err != nil {
				continue
			}
			found = append(found, flatten(v, typ, "")...)
		}
	}

	out := make([]media.Caption, 0, len(found))
	for _, rc := range found {
		out = append(out, media.Caption{
			ID:       rc.id,
			URL:      rc.url,
			Language: rc.language,
			Label:    rc.label,
			Format:   media.CaptionFormat(rc.format),
		})
	}
	return Captions(out)
}

// flatten expands one caption collection: an array, a single entry, or a
// language -> entries map.
func flatten(v []byte, typ jsonparser.ValueType, lang string) []rawCaption {
	var out []rawCaption
	switch typ {
	case jsonparser.Array:
		_, _ = jsonparser.ArrayEach(v, func(item []byte, t jsonparser.ValueType, _ int, _ error) {
			if rc, ok := entry(item, t, lang); ok {
				out = append(out, rc)
			}
		})
	case jsonparser.String:
		if rc, ok := entry(v, typ, lang); ok {
			out = append(out, rc)
		}
	case jsonparser.Object:
		if hasURLKey(v) {
			if rc, ok := entry(v, typ, lang); ok {
				out = append(out, rc)
			}
			return out
		}
		_ = jsonparser.ObjectEach(v, func(key, value []byte, t jsonparser.ValueType, _ int) error {
			out = append(out, flatten(value, t, string(key))...)
			return nil
		})
	}
	return out
}

func hasURLKey(obj []byte) bool {
	for _, k := range urlKeys {
		if _, _, _, err := jsonparser.Get(obj, k); err == nil {
			return true
		}
	}
	return false
}

// entry reads one caption: a bare URL string or an object. Thumbnail and
// chapter tracks are not captions and are dropped.
func entry(v []byte, typ jsonparser.ValueType, lang string) (rawCaption, bool) {
	rc := rawCaption{language: lang}
	switch typ {
	case jsonparser.String:
		s, err := jsonparser.ParseString(v)
		if err != nil {
			return rc, false
		}
		rc.url = strings.TrimSpace(s)
	case jsonparser.Object:
		switch strings.ToLower(stringField(v, "kind")) {
		case "thumbnails", "chapters", "metadata":
			return rc, false
		}
		rc.url = firstString(v, urlKeys...)
		rc.id = stringField(v, "id")
		rc.label = firstString(v, "label", "name")
		if l := firstString(v, "language", "lang", "srclang", "code"); l != "" {
			rc.language = l
		}
		rc.format = strings.ToLower(firstString(v, "format", "type"))
	default:
		return rc, false
	}
	return rc, rc.url != ""
}

// Captions canonicalizes a caption list: entries without a URL are dropped,
// duplicates by URL are removed keeping the first, and missing fields are
// filled. The result is never nil and Captions(Captions(x)) equals Captions(x).
func Captions(in []media.Caption) []media.Caption {
	withURL := lo.Filter(in, func(c media.Caption, _ int) bool { return strings.TrimSpace(c.URL) != "" })
	unique := lo.UniqBy(withURL, func(c media.Caption) string { return c.URL })

	out := make([]media.Caption, 0, len(unique))
	for _, c := range unique {
		c.Language = Language(c.Language)
		if c.Label == "" {
			c.Label = c.Language
		}
		if c.Label == "" {
			c.Label = "Default"
		}
		if c.ID == "" {
			c.ID = c.URL
		}
		c.Format = captionFormat(c.URL, string(c.Format))
		out = append(out, c)
	}
	return out
}

// Language canonicalizes a language code to its BCP 47 form. Values that are
// not codes, such as "English", are kept as given.
func Language(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	tag, err := language.Parse(s)
	if err != nil {
		return s
	}
	return tag.String()
}

func captionFormat(rawURL, declared string) media.CaptionFormat {
	switch strings.ToLower(declared) {
	case string(media.FormatSRT):
		return media.FormatSRT
	case string(media.FormatVTT):
		return media.FormatVTT
	}
	if strings.EqualFold(path.Ext(stripQuery(rawURL)), ".srt") {
		return media.FormatSRT
	}
	return media.FormatVTT
}
