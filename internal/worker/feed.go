// Copyright 2025 James Ross
package worker

import (
	"github.com/ghostradio/podcastd/internal/config"
	"github.com/ghostradio/podcastd/internal/episode"
	"github.com/ghostradio/podcastd/internal/feed"
)

func feedPodcastInfo(p config.Podcast) feed.PodcastInfo {
	return feed.PodcastInfo{
		Title:       p.Title,
		BaseURL:     p.BaseURL,
		Description: p.Description,
		Language:    p.Language,
		Author:      p.Author,
		Category:    p.Category,
		CoverImage:  p.CoverImage,
		AudioFormat: p.AudioFormat,
	}
}

func writeFeed(dir string, info feed.PodcastInfo, episodes []episode.Episode) error {
	return feed.Write(dir, info, episodes)
}
