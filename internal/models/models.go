package models

import "time"

type CommentAuthor struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"displayName"`
	Username    *string `json:"username,omitempty"`
	Role        *string `json:"role,omitempty"`
	AvatarURL   *string `json:"avatarUrl,omitempty"`
}

// FlatCommentRow is one comment as the backend returns it. Depth is a hint
// and may be absent or wrong; ParentID is nil for root comments.
type FlatCommentRow struct {
	ID          string        `json:"id"`
	PostID      string        `json:"postId"`
	ParentID    *string       `json:"parentId,omitempty"`
	Author      CommentAuthor `json:"author"`
	Content     string        `json:"content"`
	ContentHTML string        `json:"contentHtml,omitempty"`
	Images      []string      `json:"images"`
	Depth       *int          `json:"depth,omitempty"`
	LikesCount  int           `json:"likesCount"`
	IsLiked     bool          `json:"isLiked"`
	IsDeleted   bool          `json:"isDeleted"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   *time.Time    `json:"updatedAt,omitempty"`
	Path        string        `json:"-"`
}

// CommentRecord is the authoritative record returned by create and update.
type CommentRecord = FlatCommentRow

type Comment struct {
	ID          string
	PostID      string
	ParentID    string
	Author      CommentAuthor
	Content     string
	ContentHTML string
	Images      []string
	Depth       int
	LikesCount  int
	IsLiked     bool
	IsDeleted   bool
	CreatedAt   time.Time
	UpdatedAt   *time.Time
}

// CommentNode is the nested view handed to renderers. Replies is never nil.
type CommentNode struct {
	ID          string         `json:"id"`
	PostID      string         `json:"postId"`
	ParentID    *string        `json:"parentId,omitempty"`
	Author      CommentAuthor  `json:"author"`
	Content     string         `json:"content"`
	ContentHTML string         `json:"contentHtml,omitempty"`
	Images      []string       `json:"images"`
	Depth       int            `json:"depth"`
	LikesCount  int            `json:"likesCount"`
	IsLiked     bool           `json:"isLiked"`
	IsDeleted   bool           `json:"isDeleted"`
	Pending     bool           `json:"pending,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   *time.Time     `json:"updatedAt,omitempty"`
	Replies     []*CommentNode `json:"replies"`
}

type LikeState struct {
	IsLiked    bool `json:"isLiked"`
	LikesCount int  `json:"likesCount"`
}

type Pagination struct {
	TotalCount    int  `json:"totalCount"`
	TopLevelCount int  `json:"topLevelCount"`
	HasMore       bool `json:"hasMore"`
	Offset        int  `json:"offset"`
}

type CommentPage struct {
	Rows       []FlatCommentRow `json:"rows"`
	Pagination Pagination       `json:"pagination"`
}

type CreateCommentRequest struct {
	Content  string   `json:"content"`
	ParentID *string  `json:"parentId,omitempty"`
	Images   []string `json:"images,omitempty"`
}

type UpdateCommentRequest struct {
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// ToComment converts a wire row into the tree's flat comment. The returned
// depth is the row's hint, or -1 when absent.
func (r FlatCommentRow) ToComment() Comment {
	c := Comment{
		ID:          r.ID,
		PostID:      r.PostID,
		Author:      r.Author,
		Content:     r.Content,
		ContentHTML: r.ContentHTML,
		Images:      append([]string(nil), r.Images...),
		Depth:       -1,
		LikesCount:  r.LikesCount,
		IsLiked:     r.IsLiked,
		IsDeleted:   r.IsDeleted,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.ParentID != nil {
		c.ParentID = *r.ParentID
	}
	if r.Depth != nil {
		c.Depth = *r.Depth
	}
	return c
}

func (c Comment) IsRoot() bool {
	return c.ParentID == ""
}

// ParentRef is what storage knows about the target of a reply.
type ParentRef struct {
	ID        string
	PostID    string
	Path      string
	Depth     int
	IsDeleted bool
}
