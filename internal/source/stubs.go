package source

import "text/template"

type stubData struct {
	Name       string
	Class      string
	SuperClass string
}

type stub struct {
	migrate  *template.Template
	rollback *template.Template
}

var blankStub = stub{
	migrate:  template.Must(template.New("blank.migrate").Parse("-- {{.Name}}\n")),
	rollback: template.Must(template.New("blank.rollback").Parse("-- {{.Name}}\n")),
}

var createStub = stub{
	migrate: template.Must(template.New("create.migrate").Parse(`-- {{.Name}}
CREATE CLASS {{.Class}} IF NOT EXISTS EXTENDS {{.SuperClass}};
CREATE PROPERTY {{.Class}}.created_at IF NOT EXISTS DATETIME;
CREATE PROPERTY {{.Class}}.updated_at IF NOT EXISTS DATETIME;
`)),
	rollback: template.Must(template.New("create.rollback").Parse(`-- {{.Name}}
DROP CLASS {{.Class}} IF EXISTS UNSAFE;
`)),
}

var updateStub = stub{
	migrate: template.Must(template.New("update.migrate").Parse(`-- {{.Name}}
-- CREATE PROPERTY {{.Class}}.name IF NOT EXISTS STRING;
-- CREATE INDEX {{.Class}}.name IF NOT EXISTS ON {{.Class}} (name) NOTUNIQUE;
-- ALTER CLASS {{.Class}} STRICTMODE TRUE;
`)),
	rollback: template.Must(template.New("update.rollback").Parse(`-- {{.Name}}
-- DROP INDEX {{.Class}}.name IF EXISTS;
-- DROP PROPERTY {{.Class}}.name IF EXISTS FORCE;
`)),
}
