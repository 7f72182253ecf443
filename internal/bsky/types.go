package bsky

import (
	"github.com/bluesky-social/skyengage/internal/graph"
)

// subset of app.bsky.actor.defs#profileView(Basic|Detailed)
type profileView struct {
	Did         string  `json:"did"`
	Handle      string  `json:"handle"`
	DisplayName *string `json:"displayName,omitempty"`
}

func (pv *profileView) profile() graph.Profile {
	p := graph.Profile{
		DID:    pv.Did,
		Handle: pv.Handle,
	}
	if pv.DisplayName != nil {
		p.DisplayName = *pv.DisplayName
	}
	return p
}

type getFollowersOutput struct {
	Cursor    *string        `json:"cursor,omitempty"`
	Followers []*profileView `json:"followers"`
}

type getAuthorFeedOutput struct {
	Cursor *string             `json:"cursor,omitempty"`
	Feed   []*feedViewPostItem `json:"feed"`
}

type feedViewPostItem struct {
	Post *postView `json:"post"`
}

type postView struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

type strongRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

type followRecord struct {
	Type      string `json:"$type"`
	Subject   string `json:"subject"`
	CreatedAt string `json:"createdAt"`
}

type likeRecord struct {
	Type      string    `json:"$type"`
	Subject   strongRef `json:"subject"`
	CreatedAt string    `json:"createdAt"`
}

type createRecordInput struct {
	Repo       string `json:"repo"`
	Collection string `json:"collection"`
	Record     any    `json:"record"`
}

type createRecordOutput struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

type convoView struct {
	ID string `json:"id"`
}

type getConvoForMembersOutput struct {
	Convo *convoView `json:"convo"`
}

type messageInput struct {
	Text string `json:"text"`
}

type sendMessageInput struct {
	ConvoID string       `json:"convoId"`
	Message messageInput `json:"message"`
}
