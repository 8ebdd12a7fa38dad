package services

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/cppla/inkwell/models"
	"github.com/cppla/inkwell/utils"
)

// TaxonomyService manages categories and tags. Reads are public.
type TaxonomyService struct {
	db    *gorm.DB
	authz *Authorizer
}

// TermInput creates or updates a category or tag.
type TermInput struct {
	Name        *string
	Slug        *string
	Description *string
}

func (in TermInput) validate(creating bool) error {
	fields := map[string]string{}
	if in.Name != nil {
		*in.Name = utils.StripTags(*in.Name)
	}
	if creating && (in.Name == nil || *in.Name == "") {
		fields["name"] = "is required"
	} else if in.Name != nil && *in.Name == "" {
		fields["name"] = "must not be empty"
	} else if in.Name != nil && len([]rune(*in.Name)) > 100 {
		fields["name"] = "must be at most 100 characters"
	}
	if len(fields) > 0 {
		return Validation("invalid input", fields)
	}
	return nil
}

// Categories lists every category alphabetically.
func (s *TaxonomyService) Categories(ctx context.Context) ([]models.Category, error) {
	var out []models.Category
	err := s.db.WithContext(ctx).Order("name ASC").Find(&out).Error
	return out, Internal(err)
}

// Tags lists every tag alphabetically.
func (s *TaxonomyService) Tags(ctx context.Context) ([]models.Tag, error) {
	var out []models.Tag
	err := s.db.WithContext(ctx).Order("name ASC").Find(&out).Error
	return out, Internal(err)
}

func (s *TaxonomyService) CreateCategory(ctx context.Context, actor *models.User, in TermInput) (*models.Category, error) {
	if err := s.authz.Require(ctx, actor, PermCreateCategories); err != nil {
		return nil, err
	}
	if err := in.validate(true); err != nil {
		return nil, err
	}
	c := models.Category{Name: *in.Name}
	if in.Description != nil {
		c.Description = utils.StripTags(*in.Description)
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slug, err := uniqueSlug(tx, &models.Category{}, truncate(termSlugBase(in), 110), 0)
		if err != nil {
			return err
		}
		c.Slug = slug
		return tx.Create(&c).Error
	})
	if err != nil {
		return nil, termWriteError(err)
	}
	return &c, nil
}

func (s *TaxonomyService) UpdateCategory(ctx context.Context, actor *models.User, id uint, in TermInput) (*models.Category, error) {
	if err := s.authz.Require(ctx, actor, PermEditCategories); err != nil {
		return nil, err
	}
	if err := in.validate(false); err != nil {
		return nil, err
	}
	var c models.Category
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&c, id).Error; err != nil {
			return notFoundOr(err, "category not found")
		}
		if in.Name != nil {
			c.Name = *in.Name
		}
		if in.Description != nil {
			c.Description = utils.StripTags(*in.Description)
		}
		if in.Slug != nil {
			slug, err := uniqueSlug(tx, &models.Category{}, truncate(termSlugBase(in), 110), c.ID)
			if err != nil {
				return err
			}
			c.Slug = slug
		}
		return tx.Save(&c).Error
	})
	if err != nil {
		return nil, termWriteError(err)
	}
	return &c, nil
}

// DeleteCategory removes the category and detaches it from articles.
func (s *TaxonomyService) DeleteCategory(ctx context.Context, actor *models.User, id uint) error {
	if err := s.authz.Require(ctx, actor, PermDeleteCategories); err != nil {
		return err
	}
	return Internal(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.Category
		if err := tx.First(&c, id).Error; err != nil {
			return notFoundOr(err, "category not found")
		}
		if err := tx.Exec("DELETE FROM article_categories WHERE category_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&c).Error
	}))
}

func (s *TaxonomyService) CreateTag(ctx context.Context, actor *models.User, in TermInput) (*models.Tag, error) {
	if err := s.authz.Require(ctx, actor, PermCreateTags); err != nil {
		return nil, err
	}
	if err := in.validate(true); err != nil {
		return nil, err
	}
	t := models.Tag{Name: *in.Name}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slug, err := uniqueSlug(tx, &models.Tag{}, truncate(termSlugBase(in), 110), 0)
		if err != nil {
			return err
		}
		t.Slug = slug
		return tx.Create(&t).Error
	})
	if err != nil {
		return nil, termWriteError(err)
	}
	return &t, nil
}

func (s *TaxonomyService) UpdateTag(ctx context.Context, actor *models.User, id uint, in TermInput) (*models.Tag, error) {
	if err := s.authz.Require(ctx, actor, PermEditTags); err != nil {
		return nil, err
	}
	if err := in.validate(false); err != nil {
		return nil, err
	}
	var t models.Tag
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&t, id).Error; err != nil {
			return notFoundOr(err, "tag not found")
		}
		if in.Name != nil {
			t.Name = *in.Name
		}
		if in.Slug != nil {
			slug, err := uniqueSlug(tx, &models.Tag{}, truncate(termSlugBase(in), 110), t.ID)
			if err != nil {
				return err
			}
			t.Slug = slug
		}
		return tx.Save(&t).Error
	})
	if err != nil {
		return nil, termWriteError(err)
	}
	return &t, nil
}

// DeleteTag removes the tag and detaches it from articles.
func (s *TaxonomyService) DeleteTag(ctx context.Context, actor *models.User, id uint) error {
	if err := s.authz.Require(ctx, actor, PermDeleteTags); err != nil {
		return err
	}
	return Internal(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var t models.Tag
		if err := tx.First(&t, id).Error; err != nil {
			return notFoundOr(err, "tag not found")
		}
		if err := tx.Exec("DELETE FROM article_tags WHERE tag_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&t).Error
	}))
}

func termSlugBase(in TermInput) string {
	if in.Slug != nil && strings.TrimSpace(*in.Slug) != "" {
		return *in.Slug
	}
	if in.Name != nil {
		return *in.Name
	}
	return ""
}

func termWriteError(err error) error {
	if isDuplicate(err) {
		return Conflict("slug already in use")
	}
	return Internal(err)
}
