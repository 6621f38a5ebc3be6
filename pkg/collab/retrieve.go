package collab

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/bodybroker/core/pkg/httpclient"
)

// retrieve concurrently fetches rules and lore for species/model_type
// and packages them into a LoreContext. Either sub-fetch failing yields
// an empty slot for that call rather than aborting the pipeline (§4.10
// step 1).
func retrieve(ctx context.Context, rules *httpclient.RulesClient, lore *httpclient.LoreClient, species, modelType string, logger *zap.Logger) LoreContext {
	var (
		wg         sync.WaitGroup
		rulesResp  httpclient.Rules
		loreResp   httpclient.LoreEntries
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		r, err := rules.FetchRules(ctx, species, modelType)
		if err != nil {
			logger.Warn("collab: rules fetch failed, continuing with empty rules", zap.Error(err))
			return
		}
		rulesResp = r
	}()
	go func() {
		defer wg.Done()
		l, err := lore.FetchLore(ctx, species)
		if err != nil {
			logger.Warn("collab: lore fetch failed, continuing with empty lore", zap.Error(err))
			return
		}
		loreResp = l
	}()
	wg.Wait()

	return LoreContext{
		RequiredFields: rulesResp.RequiredFields,
		LoreEntries:    loreResp.Entries,
	}
}
