// Copyright 2025 James Ross
package feed

import (
	"encoding/base64"
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// QRPayload is the JSON body served by the QR-code and subscription-link
// endpoint.
type QRPayload struct {
	RSSURL           string `json:"rss_url"`
	ApplePodcastsURL string `json:"apple_podcasts_url"`
	QRCodeDataURL    string `json:"qr_code"`
}

// GenerateFeedQR renders rssURL as a base64 PNG data URL alongside the
// pcast:// subscription link Apple Podcasts understands.
func GenerateFeedQR(rssURL string) (QRPayload, error) {
	png, err := qrcode.Encode(rssURL, qrcode.Low, 256)
	if err != nil {
		return QRPayload{}, fmt.Errorf("generate qr code: %w", err)
	}
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)

	appleURL := strings.Replace(rssURL, "https://", "pcast://", 1)
	appleURL = strings.Replace(appleURL, "http://", "pcast://", 1)

	return QRPayload{
		RSSURL:           rssURL,
		ApplePodcastsURL: appleURL,
		QRCodeDataURL:    dataURL,
	}, nil
}
