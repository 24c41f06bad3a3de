package broker

import (
	"fmt"

	"github.com/giaprika/Social-Media-Platform/internal/models"
)

// Producer helpers mirror the domain actions of the post and user services.
// Each one applies self-notification suppression: the acting user is dropped
// from the recipient set, and an event left with no recipients is not
// published at all.

// PostCreated announces a new post to its audience.
func (p *Publisher) PostCreated(postID, userID string, recipients []string, content string) bool {
	to := filterRecipients(userID, recipients)
	if len(to) == 0 {
		return false
	}
	return p.enqueue(models.EventPostCreated, &models.PostCreated{
		PostID:     postID,
		UserID:     userID,
		Recipients: to,
		URL:        fmt.Sprintf("/post/%s", postID),
		Text:       "created a new post",
		Content:    content,
	})
}

// PostLiked notifies the post owner about a like.
func (p *Publisher) PostLiked(postID, userID, postOwnerID string) bool {
	to := filterRecipients(userID, []string{postOwnerID})
	if len(to) == 0 {
		return false
	}
	return p.enqueue(models.EventPostLiked, &models.PostLiked{
		PostID:     postID,
		UserID:     userID,
		Recipients: to,
		URL:        fmt.Sprintf("/post/%s", postID),
		Text:       models.TextLikedPost,
	})
}

// PostUnliked retracts a previous like notification.
func (p *Publisher) PostUnliked(postID, userID string) bool {
	return p.enqueue(models.EventPostUnliked, &models.PostUnliked{
		PostID: postID,
		UserID: userID,
	})
}

// CommentCreated notifies the post owner, and the tagged user when the
// comment mentions one.
func (p *Publisher) CommentCreated(commentID, postID, userID, postOwnerID, content, taggedUserID string) bool {
	recipients := []string{postOwnerID}
	text := "commented on your post"
	if taggedUserID != "" && taggedUserID != userID {
		recipients = append(recipients, taggedUserID)
		text = "mentioned you in a comment"
	}
	to := filterRecipients(userID, recipients)
	if len(to) == 0 {
		return false
	}
	return p.enqueue(models.EventCommentCreated, &models.CommentCreated{
		CommentID:  commentID,
		PostID:     postID,
		UserID:     userID,
		Recipients: to,
		URL:        fmt.Sprintf("/post/%s", postID),
		Text:       text,
		Content:    content,
	})
}

// CommentLiked notifies the comment owner about a like.
func (p *Publisher) CommentLiked(commentID, postID, userID, commentOwnerID string) bool {
	to := filterRecipients(userID, []string{commentOwnerID})
	if len(to) == 0 {
		return false
	}
	return p.enqueue(models.EventCommentLiked, &models.CommentLiked{
		CommentID:  commentID,
		PostID:     postID,
		UserID:     userID,
		Recipients: to,
		URL:        fmt.Sprintf("/post/%s", postID),
		Text:       models.TextLikedComment,
	})
}

// UserFollowed notifies the followed user.
func (p *Publisher) UserFollowed(followerID, followedUserID string) bool {
	to := filterRecipients(followerID, []string{followedUserID})
	if len(to) == 0 {
		return false
	}
	return p.enqueue(models.EventUserFollowed, &models.UserFollowed{
		UserID:     followerID,
		Recipients: to,
		URL:        fmt.Sprintf("/profile/%s", followerID),
		Text:       models.TextFollowed,
	})
}

// UserUnfollowed retracts the follow notification.
func (p *Publisher) UserUnfollowed(followerID, followedUserID string) bool {
	to := filterRecipients(followerID, []string{followedUserID})
	if len(to) == 0 {
		return false
	}
	return p.enqueue(models.EventUserUnfollowed, &models.UserUnfollowed{
		UserID:     followerID,
		Recipients: to,
	})
}

// filterRecipients drops the acting user and duplicate entries, preserving
// order.
func filterRecipients(actorID string, recipients []string) []string {
	seen := make(map[string]struct{}, len(recipients))
	out := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if r == "" || r == actorID {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
