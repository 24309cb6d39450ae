package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"MetaGatewayAPI/models"

	"github.com/lib/pq"
)

var (
	// ErrPostNotFound wraps sql.ErrNoRows for marketing post lookups.
	ErrPostNotFound = errors.New("marketing post not found")
	// ErrDuplicateMetaPost signals a unique violation on meta_post_id,
	// another record already holds the provider object id.
	ErrDuplicateMetaPost = errors.New("meta post id already linked")
	// ErrCampaignNotFound signals a foreign key violation on campaign_id.
	ErrCampaignNotFound = errors.New("campaign not found")
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// classifyPostError inspects pq error codes and folds the two integrity
// violations the orchestrator handles into distinguishable sentinels. All
// other errors pass through unchanged.
func classifyPostError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case pqUniqueViolation:
		if strings.Contains(pqErr.Constraint, "meta_post_id") {
			return fmt.Errorf("%w: %v", ErrDuplicateMetaPost, err)
		}
	case pqForeignKeyViolation:
		if strings.Contains(pqErr.Constraint, "campaign") {
			return fmt.Errorf("%w: %v", ErrCampaignNotFound, err)
		}
	}
	return err
}

func (d *Database) CreatePost(post *models.MarketingPost) error {
	query := `INSERT INTO marketing_posts
			  (meta_post_id, platform, title, content_type, file_path, link, campaign_id, user_id, status, published_at, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			  RETURNING id`

	err := d.DB.QueryRow(query,
		nullString(post.MetaPostID), post.Platform, post.Title, post.ContentType,
		post.FilePath, post.Link, post.CampaignID, nullString(post.UserID),
		post.Status, post.PublishedAt, post.CreatedAt, post.UpdatedAt,
	).Scan(&post.ID)

	return classifyPostError(err)
}

func (d *Database) UpdatePost(post *models.MarketingPost) error {
	query := `UPDATE marketing_posts
			  SET meta_post_id = $1, title = $2, content_type = $3, file_path = $4, link = $5,
			      campaign_id = $6, status = $7, published_at = $8, updated_at = $9
			  WHERE id = $10`

	_, err := d.DB.Exec(query,
		nullString(post.MetaPostID), post.Title, post.ContentType, post.FilePath,
		post.Link, post.CampaignID, post.Status, post.PublishedAt, post.UpdatedAt, post.ID)

	return classifyPostError(err)
}

func (d *Database) FindPost(id int64) (*models.MarketingPost, error) {
	query := `SELECT id, meta_post_id, platform, title, content_type, file_path, link,
			  campaign_id, user_id, status, published_at, created_at, updated_at
			  FROM marketing_posts WHERE id = $1`

	return d.scanPost(d.DB.QueryRow(query, id))
}

func (d *Database) FindPostByMetaID(metaPostID string) (*models.MarketingPost, error) {
	query := `SELECT id, meta_post_id, platform, title, content_type, file_path, link,
			  campaign_id, user_id, status, published_at, created_at, updated_at
			  FROM marketing_posts WHERE meta_post_id = $1`

	return d.scanPost(d.DB.QueryRow(query, metaPostID))
}

func (d *Database) DeletePost(id int64) error {
	_, err := d.DB.Exec(`DELETE FROM marketing_posts WHERE id = $1`, id)
	return err
}

func (d *Database) CreateCampaign(campaign *models.Campaign) error {
	query := `INSERT INTO campaigns (name, created_at) VALUES ($1, $2) RETURNING id`
	return d.DB.QueryRow(query, campaign.Name, campaign.CreatedAt).Scan(&campaign.ID)
}

func (d *Database) scanPost(row *sql.Row) (*models.MarketingPost, error) {
	post := &models.MarketingPost{}
	var metaPostID, userID sql.NullString

	err := row.Scan(&post.ID, &metaPostID, &post.Platform, &post.Title,
		&post.ContentType, &post.FilePath, &post.Link, &post.CampaignID,
		&userID, &post.Status, &post.PublishedAt, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}

	post.MetaPostID = metaPostID.String
	post.UserID = userID.String
	return post, nil
}

// nullString stores empty strings as NULL so the UNIQUE constraint on
// meta_post_id only bites on real provider ids.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
