package apidocumentv1

import (
	"context"

	"github.com/fulldump/box"

	"github.com/fulldump/ridbagdb/rid"
)

// urlRID reads the document identity from /documents/{cluster}/{position}.
func urlRID(ctx context.Context) (rid.RID, error) {
	cluster := box.GetUrlParameter(ctx, "cluster")
	position := box.GetUrlParameter(ctx, "position")
	return rid.Parse(cluster + ":" + position)
}

type linksRequest struct {
	Bag     string    `json:"bag"`
	Targets []rid.RID `json:"targets"`
}
