package contenttype

// Names of the built-in content types.
const (
	JSON = "JSON"

	Ticket        = "Ticket"
	Incident      = "Incident"
	Problem       = "Problem"
	ChangeRequest = "ChangeRequest"
	Alert         = "Alert"
	Request       = "Request"
	RequestItem   = "RequestItem"

	CmdbCI      = "CMDB_CI"
	Application = "Application"
	Device      = "Device"
	Service     = "Service"

	KnowledgeArticle = "KnowledgeArticle"
	ExternalDocument = "ExternalDocument"
	FAQ              = "FAQ"

	ServiceCatalog         = "ServiceCatalog"
	ServiceCatalogItem     = "ServiceCatalogItem"
	ServiceCatalogCategory = "ServiceCatalogCategory"

	Event     = "Event"
	User      = "User"
	UserGroup = "UserGroup"
)

// Default returns the ITSM hierarchy with ServiceNow resource names.
func Default() *Registry {
	b := NewBuilder()
	b.MustRegister(ContentType{Name: JSON}, "")

	b.MustRegister(ContentType{Name: Ticket}, "").
		MustRegister(ContentType{Name: Incident, ExternalResourceName: "incident", Creatable: true, Modifiable: true}, Ticket).
		MustRegister(ContentType{Name: Problem, ExternalResourceName: "problem"}, Ticket).
		MustRegister(ContentType{Name: ChangeRequest, ExternalResourceName: "change_request"}, Ticket).
		MustRegister(ContentType{Name: Alert}, Ticket).
		MustRegister(ContentType{Name: Request, ExternalResourceName: "sc_request", Creatable: true}, Ticket).
		MustRegister(ContentType{Name: RequestItem, ExternalResourceName: "sc_req_item", Creatable: true}, Ticket)

	b.MustRegister(ContentType{Name: CmdbCI, ExternalResourceName: "cmdb_ci"}, "").
		MustRegister(ContentType{Name: Application}, CmdbCI).
		MustRegister(ContentType{Name: Device}, CmdbCI).
		MustRegister(ContentType{Name: Service}, CmdbCI)

	b.MustRegister(ContentType{Name: KnowledgeArticle, ExternalResourceName: "kb_knowledge"}, "").
		MustRegister(ContentType{Name: ExternalDocument}, KnowledgeArticle).
		MustRegister(ContentType{Name: FAQ}, KnowledgeArticle)

	b.MustRegister(ContentType{Name: ServiceCatalog, ExternalResourceName: "catalogs"}, "").
		MustRegister(ContentType{Name: ServiceCatalogItem, ExternalResourceName: "items"}, ServiceCatalog).
		MustRegister(ContentType{Name: ServiceCatalogCategory, ExternalResourceName: "categories"}, ServiceCatalog)

	b.MustRegister(ContentType{Name: Event}, "")
	b.MustRegister(ContentType{Name: User, ExternalResourceName: "sys_user"}, "")
	b.MustRegister(ContentType{Name: UserGroup, ExternalResourceName: "sys_user_group"}, "")
	return b.Build()
}

// Function is a data source capability requested by a caller.
type Function string

const (
	LearnTickets         Function = "LearnTickets"
	LearnIncidents       Function = "LearnIncidents"
	LearnProblems        Function = "LearnProblems"
	LearnChangeRequests  Function = "LearnChangeRequests"
	LearnAlerts          Function = "LearnAlerts"
	LearnRequests        Function = "LearnRequests"
	LearnRequestItems    Function = "LearnRequestItems"
	LearnCmdbCi          Function = "LearnCmdbCi"
	LearnApplications    Function = "LearnApplications"
	LearnDevices         Function = "LearnDevices"
	LearnServices        Function = "LearnServices"
	LearnUsers           Function = "LearnUsers"
	LearnUserGroups      Function = "LearnUserGroups"
	LearnKB              Function = "LearnKB"
	LearnServiceCatalogs Function = "LearnServiceCatalogs"
	CreateTickets        Function = "CreateTickets"
	CreateIncidents      Function = "CreateIncidents"
	CreateProblems       Function = "CreateProblems"
	CreateChangeRequests Function = "CreateChangeRequests"
	CreateRequests       Function = "CreateRequests"
	CreateRequestItems   Function = "CreateRequestItems"
)

var functionTypes = map[Function]string{
	LearnTickets:         Ticket,
	CreateTickets:        Ticket,
	LearnIncidents:       Incident,
	CreateIncidents:      Incident,
	LearnProblems:        Problem,
	CreateProblems:       Problem,
	LearnChangeRequests:  ChangeRequest,
	CreateChangeRequests: ChangeRequest,
	LearnAlerts:          Alert,
	LearnRequests:        Request,
	CreateRequests:       Request,
	LearnRequestItems:    RequestItem,
	CreateRequestItems:   RequestItem,
	LearnCmdbCi:          CmdbCI,
	LearnApplications:    Application,
	LearnDevices:         Device,
	LearnServices:        Service,
	LearnUsers:           User,
	LearnUserGroups:      UserGroup,
	LearnKB:              KnowledgeArticle,
	LearnServiceCatalogs: ServiceCatalog,
}

// ForFunction returns the content type serving fn.
func (r *Registry) ForFunction(fn Function) (*ContentType, error) {
	name, ok := functionTypes[fn]
	if !ok {
		return nil, &NotFoundError{Name: string(fn)}
	}
	return r.Resolve(name)
}
