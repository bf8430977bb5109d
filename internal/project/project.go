package project

import (
	"sort"
	"strings"

	"github.com/quarryhq/quarry/internal/model"
)

// Project renders a snapshot into the structured report. It is pure: no
// clock, no randomness, no I/O, so projecting the same snapshot twice
// yields byte-identical JSON.
//
// Claims sharing a topic key form one section, ordered by the topic's
// earliest claim. Superseded claims are dropped from section bodies but
// still appear as positions inside their topic's conflict block.
func Project(snap model.Snapshot) model.Document {
	doc := model.Document{
		SessionID: snap.SessionID,
		Query:     snap.Query,
	}

	type group struct {
		key    string
		minSeq int
		claims []model.Claim
	}
	groups := make(map[string]*group)
	var order []*group
	for _, c := range snap.Claims {
		g, ok := groups[c.TopicKey]
		if !ok {
			g = &group{key: c.TopicKey, minSeq: c.Seq}
			groups[c.TopicKey] = g
			order = append(order, g)
		}
		if c.Seq < g.minSeq {
			g.minSeq = c.Seq
		}
		g.claims = append(g.claims, c)
	}
	sort.SliceStable(order, func(i, j int) bool { return order[i].minSeq < order[j].minSeq })

	claimByID := make(map[string]model.Claim, len(snap.Claims))
	for _, c := range snap.Claims {
		claimByID[c.ID] = c
	}
	conflictByTopic := make(map[string]model.Conflict, len(snap.Conflicts))
	for _, cf := range snap.Conflicts {
		conflictByTopic[cf.TopicKey] = cf
	}

	for _, g := range order {
		sec := model.DocSection{
			Title:    humanizeKey(g.key),
			TopicKey: g.key,
		}
		for _, c := range g.claims {
			if c.SupersededBy != "" {
				continue
			}
			sec.Claims = append(sec.Claims, docClaim(c))
		}
		if cf, ok := conflictByTopic[g.key]; ok {
			sec.Conflict = docConflict(cf, claimByID)
		}
		if len(sec.Claims) == 0 && sec.Conflict == nil {
			continue
		}
		doc.Sections = append(doc.Sections, sec)
	}

	for _, src := range snap.Sources {
		doc.Sources = append(doc.Sources, model.DocSource{
			ID:     src.ID,
			Kind:   src.Kind,
			Origin: src.Origin,
			Label:  sourceLabel(src),
		})
	}

	for _, s := range snap.Summaries {
		doc.Summaries = append(doc.Summaries, model.DocSummary{Backend: s.Backend, Text: s.Text})
	}

	return doc
}

func docClaim(c model.Claim) model.DocClaim {
	dc := model.DocClaim{
		ID:         c.ID,
		Text:       c.Text,
		Backends:   append([]string(nil), c.ReportingBackends...),
		Confidence: c.Confidence,
	}
	for _, cit := range c.Citations {
		dc.Citations = append(dc.Citations, model.DocCitation{
			Backend:  cit.Backend,
			URL:      cit.URL,
			SourceID: cit.SourceID,
		})
	}
	return dc
}

func docConflict(cf model.Conflict, claimByID map[string]model.Claim) *model.DocConflict {
	out := &model.DocConflict{
		ID:         cf.ID,
		Resolution: cf.Resolution,
	}

	members := make([]model.Claim, 0, len(cf.MemberClaimIDs))
	for _, id := range cf.MemberClaimIDs {
		if c, ok := claimByID[id]; ok {
			members = append(members, c)
		}
	}
	sort.SliceStable(members, func(i, j int) bool { return members[i].Seq < members[j].Seq })

	for _, c := range members {
		out.Positions = append(out.Positions, model.DocPosition{
			ClaimID:    c.ID,
			Text:       c.Text,
			Backends:   append([]string(nil), c.ReportingBackends...),
			Superseded: c.SupersededBy != "",
		})
	}
	return out
}

// humanizeKey turns "revenue-grew" into "Revenue Grew". Topic keys are
// ASCII by construction, so byte-level capitalization is safe.
func humanizeKey(key string) string {
	words := strings.Split(key, "-")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// sourceLabel picks a human-readable name from source metadata
func sourceLabel(src model.Source) string {
	for _, k := range []string{"title", "filename", "url"} {
		if v := src.Metadata[k]; v != "" {
			return v
		}
	}
	return ""
}
