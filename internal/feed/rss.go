// Copyright 2025 James Ross

// Package feed generates the per-user podcast RSS feed and subscription QR
// codes served by the HTTP API.
package feed

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ghostradio/podcastd/internal/episode"
)

// PodcastInfo carries the channel-level metadata shown in the feed.
type PodcastInfo struct {
	Title       string
	BaseURL     string
	Description string
	Language    string
	Author      string
	Category    string
	CoverImage  string
	AudioFormat string
}

type rssFeed struct {
	XMLName     xml.Name   `xml:"rss"`
	Version     string     `xml:"version,attr"`
	ItunesNS    string     `xml:"xmlns:itunes,attr"`
	ContentNS   string     `xml:"xmlns:content,attr"`
	Channel     rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title          string       `xml:"title"`
	Link           string       `xml:"link"`
	Description    string       `xml:"description"`
	Language       string       `xml:"language"`
	ItunesAuthor   string       `xml:"itunes:author"`
	ItunesCategory rssCategory  `xml:"itunes:category"`
	ItunesExplicit string       `xml:"itunes:explicit"`
	ItunesImage    *rssImageRef `xml:"itunes:image,omitempty"`
	Generator      string       `xml:"generator"`
	Items          []rssItem    `xml:"item"`
}

type rssCategory struct {
	Text string `xml:"text,attr"`
}

type rssImageRef struct {
	Href string `xml:"href,attr"`
}

type rssItem struct {
	Title          string       `xml:"title"`
	Description    string       `xml:"description"`
	Link           string       `xml:"link"`
	PubDate        string       `xml:"pubDate"`
	GUID           rssGUID      `xml:"guid"`
	Enclosure      *rssEnclosure `xml:"enclosure,omitempty"`
	ItunesDuration string       `xml:"itunes:duration,omitempty"`
	ItunesAuthor   string       `xml:"itunes:author"`
	ItunesExplicit string       `xml:"itunes:explicit"`
}

type rssGUID struct {
	IsPermaLink string `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

type rssEnclosure struct {
	URL    string `xml:"url,attr"`
	Length string `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}

var mimeTypes = map[string]string{
	"mp3":  "audio/mpeg",
	"m4a":  "audio/mp4",
	"mp4":  "audio/mp4",
	"aac":  "audio/aac",
	"ogg":  "audio/ogg",
	"opus": "audio/ogg",
}

func mimeTypeFor(format string) string {
	if mt, ok := mimeTypes[strings.ToLower(format)]; ok {
		return mt
	}
	return "audio/mpeg"
}

func formatDuration(seconds float64) string {
	total := int(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%d:%02d", minutes, secs)
}

// Generate renders episodes (newest first, as returned by the catalog) into
// a podcast RSS 2.0 document.
func Generate(info PodcastInfo, episodes []episode.Episode) ([]byte, error) {
	channel := rssChannel{
		Title:          info.Title,
		Link:           info.BaseURL,
		Description:    info.Description,
		Language:       info.Language,
		ItunesAuthor:   info.Author,
		ItunesCategory: rssCategory{Text: info.Category},
		ItunesExplicit: "false",
		Generator:      "podcastd",
	}
	if info.CoverImage != "" {
		channel.ItunesImage = &rssImageRef{Href: info.BaseURL + "/" + info.CoverImage}
	}

	for _, ep := range episodes {
		item := rssItem{
			Title:          ep.Title,
			Description:    fmt.Sprintf("Episode %s", ep.ID),
			Link:           ep.SourceURL,
			PubDate:        ep.CreatedAt.UTC().Format("Mon, 02 Jan 2006 15:04:05 +0000"),
			GUID:           rssGUID{IsPermaLink: "false", Value: ep.ID},
			ItunesAuthor:   info.Author,
			ItunesExplicit: "false",
		}
		if ep.AudioFile != "" {
			item.Enclosure = &rssEnclosure{
				URL:    fmt.Sprintf("%s/episodes/%s", info.BaseURL, filepath.Base(ep.AudioFile)),
				Length: fmt.Sprintf("%d", ep.SizeBytes),
				Type:   mimeTypeFor(info.AudioFormat),
			}
			if ep.DurationSeconds > 0 {
				item.ItunesDuration = formatDuration(ep.DurationSeconds)
			}
		}
		channel.Items = append(channel.Items, item)
	}

	feedDoc := rssFeed{
		Version:   "2.0",
		ItunesNS:  "http://www.itunes.com/dtds/podcast-1.0.dtd",
		ContentNS: "http://purl.org/rss/1.0/modules/content/",
		Channel:   channel,
	}

	out, err := xml.MarshalIndent(feedDoc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal rss feed: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// Write generates the feed and writes it to <dir>/feed.xml via a
// write-to-temp + rename swap.
func Write(dir string, info PodcastInfo, episodes []episode.Episode) error {
	data, err := Generate(info, episodes)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-feed-*")
	if err != nil {
		return fmt.Errorf("create temp feed file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, filepath.Join(dir, "feed.xml"))
}
