package github

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	apperrors "github-stats-harvester/internal/errors"
	"github-stats-harvester/internal/model"
)

// DefaultPageSize is the number of search results requested per page.
const DefaultPageSize = 50

const searchQuery = `
query($q: String!, $cursor: String, $first: Int!) {
  search(query: $q, type: REPOSITORY, first: $first, after: $cursor) {
    repositoryCount
    pageInfo { hasNextPage endCursor }
    nodes {
      ... on Repository {
        name
        owner { login }
      }
    }
  }
  rateLimit { limit cost remaining resetAt }
}`

const repositoryQuery = `
query($owner: String!, $name: String!) {
  repository(owner: $owner, name: $name) {
    id
    name
    url
    description
    primaryLanguage { name }
    owner { login }
    stargazerCount
    forkCount
    watchers { totalCount }
    createdAt
    updatedAt
  }
  rateLimit { limit cost remaining resetAt }
}`

// SearchPage is one page of a repository search.
type SearchPage struct {
	RepositoryCount int
	HasNextPage     bool
	EndCursor       string
	FullNames       []string
}

type searchResult struct {
	RepositoryCount int `json:"repositoryCount"`
	PageInfo        struct {
		HasNextPage bool    `json:"hasNextPage"`
		EndCursor   *string `json:"endCursor"`
	} `json:"pageInfo"`
	Nodes []*repositoryNode `json:"nodes"`
}

type repositoryNode struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	URL             string  `json:"url"`
	Description     *string `json:"description"`
	PrimaryLanguage *struct {
		Name string `json:"name"`
	} `json:"primaryLanguage"`
	Owner struct {
		Login string `json:"login"`
	} `json:"owner"`
	StargazerCount int `json:"stargazerCount"`
	ForkCount      int `json:"forkCount"`
	Watchers       *struct {
		TotalCount int `json:"totalCount"`
	} `json:"watchers"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SearchRepositories fetches one page of a repository search. An empty cursor
// requests the first page.
func (c *Client) SearchRepositories(ctx context.Context, query, cursor string, first int) (*SearchPage, error) {
	vars := map[string]any{"q": query, "first": first, "cursor": nil}
	if cursor != "" {
		vars["cursor"] = cursor
	}

	data, err := c.Execute(ctx, searchQuery, vars)
	if err != nil {
		return nil, err
	}

	var res *searchResult
	if err := decodeField(data, "search", &res); err != nil {
		return nil, err
	}
	if res == nil {
		return nil, &apperrors.PermanentRequestError{Err: fmt.Errorf("search %q returned no result", query)}
	}

	page := &SearchPage{
		RepositoryCount: res.RepositoryCount,
		HasNextPage:     res.PageInfo.HasNextPage,
		FullNames:       make([]string, 0, len(res.Nodes)),
	}
	if res.PageInfo.EndCursor != nil {
		page.EndCursor = *res.PageInfo.EndCursor
	}
	for _, n := range res.Nodes {
		// Non-repository or inaccessible results come back as null or empty objects.
		if n == nil || n.Owner.Login == "" || n.Name == "" {
			continue
		}
		page.FullNames = append(page.FullNames, n.Owner.Login+"/"+n.Name)
	}
	return page, nil
}

// GetRepository fetches repository details and translates them to our internal model.
func (c *Client) GetRepository(ctx context.Context, owner, name string) (*model.Repository, error) {
	data, err := c.Execute(ctx, repositoryQuery, map[string]any{"owner": owner, "name": name})
	if err != nil {
		return nil, err
	}

	var node *repositoryNode
	if err := decodeField(data, "repository", &node); err != nil {
		return nil, err
	}
	if node == nil {
		return nil, &apperrors.PermanentRequestError{Err: fmt.Errorf("repository %s/%s not found", owner, name)}
	}
	return toInternalRepository(node), nil
}

func decodeField(data Payload, field string, out any) error {
	raw, ok := data[field]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &apperrors.PermanentRequestError{Err: fmt.Errorf("decode %s: %w", field, err)}
	}
	return nil
}

// toInternalRepository translates a GraphQL repository node to our internal model.Repository.
func toInternalRepository(n *repositoryNode) *model.Repository {
	repo := &model.Repository{
		ID:            n.ID,
		Owner:         n.Owner.Login,
		Name:          n.Name,
		FullName:      n.Owner.Login + "/" + n.Name,
		URL:           n.URL,
		Description:   n.Description,
		StarsCount:    n.StargazerCount,
		ForksCount:    n.ForkCount,
		RepoCreatedAt: n.CreatedAt,
		RepoUpdatedAt: n.UpdatedAt,
	}
	if n.PrimaryLanguage != nil {
		lang := n.PrimaryLanguage.Name
		repo.Language = &lang
	}
	if n.Watchers != nil {
		repo.WatchersCount = n.Watchers.TotalCount
	}
	// Open issues are not part of this query shape.
	repo.OpenIssuesCount = nil
	return repo
}
