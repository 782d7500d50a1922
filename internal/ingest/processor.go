package ingest

import (
	"context"

	"github.com/si-chain/eosio-plugin/internal/chain"
	"github.com/si-chain/eosio-plugin/internal/metrics"
)

// processTransaction decodes one accepted transaction's actions in order and
// persists the filter-matched ones as a single unordered bulk insert.
// Registry/schema mutation happens unconditionally; document building and
// the write are gated on the start height.
func (p *Pipeline) processTransaction(ctx context.Context, t *chain.TransactionMeta) {
	if !p.startBlockReached && t.BlockNum >= p.cfg.StartBlock {
		p.startBlockReached = true
		p.logger.Info("start block reached, persistence enabled",
			"start_block", p.cfg.StartBlock,
			"block_num", t.BlockNum,
		)
	}

	var batch []ActionDocument
	actNum := int32(0)

	processAction := func(act chain.Action, cfa bool) {
		// Schema state must stay correct even while output is suppressed.
		p.decoder.UpdateAccount(ctx, act)

		if p.startBlockReached {
			doc := ActionDocument{
				ActionNum:     actNum,
				TrxID:         t.ID,
				CFA:           cfa,
				Account:       act.Account,
				Name:          act.Name,
				Authorization: authDocuments(act.Authorization),
			}
			doc.Data, doc.HexData = p.decoder.DecodePayload(ctx, act)

			if _, ok := p.filter[act.Account]; ok {
				batch = append(batch, doc)
			}
		}

		actNum++
	}

	for _, act := range t.ContextFreeActions {
		processAction(act, true)
	}
	for _, act := range t.Actions {
		processAction(act, false)
	}

	if p.startBlockReached && len(batch) > 0 {
		if err := p.actions.BulkInsertActions(ctx, batch); err != nil {
			// Logged, not retried; already-applied registry mutations are
			// not rolled back.
			p.logger.Error("bulk filter insert failed", "trx_id", t.ID, "error", err)
			metrics.BulkWriteErrors.Inc()
		} else {
			metrics.ActionsPersisted.Add(float64(len(batch)))
		}
	}

	metrics.Transactions.Inc()
}
