// internal/models/campaign.go
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type Feature struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	ID    int    `json:"id"`
}

// FeaturePair is the projection of a selected Feature sent to the generator.
type FeaturePair struct {
	Key   string
	Value string
}

// MarshalJSON renders the pair as a singleton object {key: value}.
func (p FeaturePair) MarshalJSON() ([]byte, error) {
	k, err := json.Marshal(p.Key)
	if err != nil {
		return nil, err
	}
	v, err := json.Marshal(p.Value)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (p *FeaturePair) UnmarshalJSON(data []byte) error {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if len(m) != 1 {
		return fmt.Errorf("feature pair must have exactly one key, got %d", len(m))
	}
	for k, v := range m {
		p.Key, p.Value = k, v
	}
	return nil
}

type ImageResolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	ID     int `json:"id"`
}

func (r ImageResolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// CampaignRequest is the immutable payload sent as the first and only frame
// of a generation session.
type CampaignRequest struct {
	Prompt          string
	TargetAudiences []string
	Features        []FeaturePair
	ImageResolution ImageResolution
}

// campaignRequestWire fixes the key order of the outbound frame.
type campaignRequestWire struct {
	Prompt           string            `json:"prompt"`
	TargetAudiences  []string          `json:"targetAudiences"`
	Features         []FeaturePair     `json:"features"`
	ImageResolutions []ImageResolution `json:"imageResolutions"`
}

func (r CampaignRequest) MarshalJSON() ([]byte, error) {
	w := campaignRequestWire{
		Prompt:           r.Prompt,
		TargetAudiences:  r.TargetAudiences,
		Features:         r.Features,
		ImageResolutions: []ImageResolution{r.ImageResolution},
	}
	if w.TargetAudiences == nil {
		w.TargetAudiences = []string{}
	}
	if w.Features == nil {
		w.Features = []FeaturePair{}
	}
	return json.Marshal(w)
}

func (r *CampaignRequest) UnmarshalJSON(data []byte) error {
	var w campaignRequestWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.Prompt = w.Prompt
	r.TargetAudiences = w.TargetAudiences
	r.Features = w.Features
	r.ImageResolution = ImageResolution{}
	if len(w.ImageResolutions) > 0 {
		r.ImageResolution = w.ImageResolutions[0]
	}
	return nil
}

// Clone returns a deep copy so callers cannot mutate a submitted request.
func (r CampaignRequest) Clone() CampaignRequest {
	out := r
	out.TargetAudiences = append([]string(nil), r.TargetAudiences...)
	out.Features = append([]FeaturePair(nil), r.Features...)
	return out
}
