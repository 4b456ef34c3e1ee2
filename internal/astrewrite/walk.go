package astrewrite

import (
	"github.com/dop251/goja/ast"
)

// The walk visits every node that can contain an expression. Only the
// assignment and binding visitors look for patterns; everything else just
// descends. DeclarationList fields are skipped since their bindings are
// also reachable through the statements that declared them.

func (v *visitor) statements(list []ast.Statement) {
	for _, s := range list {
		v.statement(s, true)
	}
}

func (v *visitor) block(b *ast.BlockStatement) {
	if b != nil {
		v.statements(b.List)
	}
}

// statement walks s. inList is true when s sits directly in a statement
// list, where new statements can be inserted before it.
func (v *visitor) statement(s ast.Statement, inList bool) {
	switch n := s.(type) {
	case *ast.ExpressionStatement:
		if as, ok := n.Expression.(*ast.AssignExpression); ok && inList {
			if v.callbackInstall(as, true) {
				v.expr(as.Right)
				return
			}
		}
		v.expr(n.Expression)
	case *ast.VariableStatement:
		v.bindings(n.List)
	case *ast.LexicalDeclaration:
		v.bindings(n.List)
	case *ast.BlockStatement:
		v.block(n)
	case *ast.IfStatement:
		v.expr(n.Test)
		v.statement(n.Consequent, false)
		v.statement(n.Alternate, false)
	case *ast.ForStatement:
		v.forInit(n.Initializer)
		v.expr(n.Test)
		v.expr(n.Update)
		v.statement(n.Body, false)
	case *ast.ForInStatement:
		v.forInto(n.Into)
		v.expr(n.Source)
		v.statement(n.Body, false)
	case *ast.ForOfStatement:
		v.forInto(n.Into)
		v.expr(n.Source)
		v.statement(n.Body, false)
	case *ast.WhileStatement:
		v.expr(n.Test)
		v.statement(n.Body, false)
	case *ast.DoWhileStatement:
		v.statement(n.Body, false)
		v.expr(n.Test)
	case *ast.ReturnStatement:
		v.expr(n.Argument)
	case *ast.ThrowStatement:
		v.expr(n.Argument)
	case *ast.TryStatement:
		v.block(n.Body)
		if n.Catch != nil {
			v.expr(n.Catch.Parameter)
			v.block(n.Catch.Body)
		}
		v.block(n.Finally)
	case *ast.SwitchStatement:
		v.expr(n.Discriminant)
		for _, c := range n.Body {
			v.expr(c.Test)
			v.statements(c.Consequent)
		}
	case *ast.LabelledStatement:
		v.statement(n.Statement, false)
	case *ast.WithStatement:
		v.expr(n.Object)
		v.statement(n.Body, false)
	case *ast.FunctionDeclaration:
		v.function(n.Function)
	case *ast.ClassDeclaration:
		v.class(n.Class)
	}
}

func (v *visitor) bindings(list []*ast.Binding) {
	for _, b := range list {
		v.binding(b)
	}
}

func (v *visitor) binding(b *ast.Binding) {
	if b == nil {
		return
	}
	if v.loaderRead(b) {
		return
	}
	v.expr(b.Target)
	v.expr(b.Initializer)
}

func (v *visitor) forInit(init ast.ForLoopInitializer) {
	switch n := init.(type) {
	case *ast.ForLoopInitializerExpression:
		v.expr(n.Expression)
	case *ast.ForLoopInitializerVarDeclList:
		v.bindings(n.List)
	case *ast.ForLoopInitializerLexicalDecl:
		v.bindings(n.LexicalDeclaration.List)
	}
}

func (v *visitor) forInto(into ast.ForInto) {
	switch n := into.(type) {
	case *ast.ForIntoVar:
		v.binding(n.Binding)
	case *ast.ForDeclaration:
		v.expr(n.Target)
	case *ast.ForIntoExpression:
		v.expr(n.Expression)
	}
}

func (v *visitor) function(f *ast.FunctionLiteral) {
	if f == nil {
		return
	}
	v.params(f.ParameterList)
	v.block(f.Body)
}

func (v *visitor) params(p *ast.ParameterList) {
	if p == nil {
		return
	}
	v.bindings(p.List)
	v.expr(p.Rest)
}

func (v *visitor) class(c *ast.ClassLiteral) {
	if c == nil {
		return
	}
	v.expr(c.SuperClass)
	for _, el := range c.Body {
		switch n := el.(type) {
		case *ast.FieldDefinition:
			if n.Computed {
				v.expr(n.Key)
			}
			v.expr(n.Initializer)
		case *ast.MethodDefinition:
			if n.Computed {
				v.expr(n.Key)
			}
			v.function(n.Body)
		case *ast.ClassStaticBlock:
			v.block(n.Block)
		}
	}
}

func (v *visitor) exprs(list []ast.Expression) {
	for _, e := range list {
		v.expr(e)
	}
}

func (v *visitor) expr(e ast.Expression) {
	switch n := e.(type) {
	case nil:
	case *ast.AssignExpression:
		if v.pushArrayInit(n) {
			return
		}
		if v.callbackInstall(n, false) {
			v.expr(n.Right)
			return
		}
		v.expr(n.Left)
		v.expr(n.Right)
	case *ast.BinaryExpression:
		v.expr(n.Left)
		v.expr(n.Right)
	case *ast.ConditionalExpression:
		v.expr(n.Test)
		v.expr(n.Consequent)
		v.expr(n.Alternate)
	case *ast.UnaryExpression:
		v.expr(n.Operand)
	case *ast.SequenceExpression:
		v.exprs(n.Sequence)
	case *ast.CallExpression:
		v.expr(n.Callee)
		v.exprs(n.ArgumentList)
	case *ast.NewExpression:
		v.expr(n.Callee)
		v.exprs(n.ArgumentList)
	case *ast.DotExpression:
		v.expr(n.Left)
	case *ast.PrivateDotExpression:
		v.expr(n.Left)
	case *ast.BracketExpression:
		v.expr(n.Left)
		v.expr(n.Member)
	case *ast.OptionalChain:
		v.expr(n.Expression)
	case *ast.Optional:
		v.expr(n.Expression)
	case *ast.ArrayLiteral:
		v.exprs(n.Value)
	case *ast.ArrayPattern:
		v.exprs(n.Elements)
		v.expr(n.Rest)
	case *ast.ObjectLiteral:
		for _, p := range n.Value {
			v.expr(p)
		}
	case *ast.ObjectPattern:
		for _, p := range n.Properties {
			v.expr(p)
		}
		v.expr(n.Rest)
	case *ast.PropertyKeyed:
		if n.Computed {
			v.expr(n.Key)
		}
		v.expr(n.Value)
	case *ast.PropertyShort:
		v.expr(n.Initializer)
	case *ast.SpreadElement:
		v.expr(n.Expression)
	case *ast.Binding:
		v.binding(n)
	case *ast.FunctionLiteral:
		v.function(n)
	case *ast.ArrowFunctionLiteral:
		v.params(n.ParameterList)
		switch body := n.Body.(type) {
		case *ast.BlockStatement:
			v.block(body)
		case *ast.ExpressionBody:
			v.expr(body.Expression)
		}
	case *ast.ClassLiteral:
		v.class(n)
	case *ast.TemplateLiteral:
		v.expr(n.Tag)
		v.exprs(n.Expressions)
	case *ast.YieldExpression:
		v.expr(n.Argument)
	case *ast.AwaitExpression:
		v.expr(n.Argument)
	}
}
