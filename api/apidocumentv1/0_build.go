package apidocumentv1

import (
	"github.com/fulldump/box"

	"github.com/fulldump/ridbagdb/service"
)

func BuildV1Document(v1 *box.R, s service.Servicer) *box.R {

	documents := v1.Resource("/documents").
		WithActions(
			box.Post(createDocument),
		)

	v1.Resource("/documents/{cluster}/{position}").
		WithActions(
			box.Get(getDocument),
			box.ActionPost(addLink),
			box.ActionPost(removeLink),
			box.ActionPost(listLinks),
		)

	v1.Resource("/stats").
		WithActions(
			box.Get(stats),
		)

	return documents
}
